package jvspatial

import (
	"reflect"
	"sync"
)

// Hook registration and dispatch (spec §4.6/§9). The source language
// decorates methods with @on_visit(T1, T2, ...) at class-definition
// time; Go has neither decorators nor runtime method discovery by
// annotation, so jvspatial builds the same "static per-class hook
// index" design note §9 recommends via explicit registration calls
// made from each walker/entity package's init() function:
//
//	func init() {
//		jvspatial.OnVisit[MyWalker, CityNode](func(w *MyWalker, here *CityNode) error {
//			w.Visited = append(w.Visited, here.ID())
//			neighbors, err := jvspatial.Nodes(context.Background(), w.GC, here, jvspatial.NodesOptions{})
//			if err != nil {
//				return err
//			}
//			w.Visit(neighbors...)
//			return nil
//		})
//	}
//
// Multiple calls to OnVisit for the same W with different T express
// spec §4.6's "multiple targets in one decorator = union".

type walkerHookEntry struct {
	entityType reflect.Type // nil = catch-all, fires for every visit
	fn         func(w any, here Entity) error
}

type entityHookEntry struct {
	walkerType reflect.Type // nil = catch-all, fires for any walker (spec §9 decision 4)
	fn         func(here Entity, visitor any) error
}

type exitHookEntry struct {
	fn func(w any) error
}

var (
	hookMu      sync.RWMutex
	walkerHooks = map[reflect.Type][]walkerHookEntry{}
	entityHooks = map[reflect.Type][]entityHookEntry{}
	exitHooks   = map[reflect.Type][]exitHookEntry{}
)

// OnExit registers a hook on walker type W firing once when its
// traversal loop exits, whatever the cause — normal completion, pause,
// disengage, or a hook error (spec §4.6/§7: "@on_exit fires" on every
// programmatic termination).
func OnExit[W any](fn func(w *W) error) {
	wt := reflect.TypeOf((*W)(nil))
	hookMu.Lock()
	defer hookMu.Unlock()
	exitHooks[wt] = append(exitHooks[wt], exitHookEntry{fn: func(wAny any) error {
		w, ok := wAny.(*W)
		if !ok {
			return nil
		}
		return fn(w)
	}})
}

func dispatchExit(wSelf any) error {
	wt := reflect.TypeOf(wSelf)
	hookMu.RLock()
	hooks := append([]exitHookEntry(nil), exitHooks[wt]...)
	hookMu.RUnlock()
	for _, h := range hooks {
		if err := h.fn(wSelf); err != nil {
			return err
		}
	}
	return nil
}

// OnVisit registers a hook on walker type W firing when it visits an
// entity of concrete type T (spec §4.6's targeting rule: "a Walker
// subclass may only target Node/Edge subclasses").
func OnVisit[W any, T any](fn func(w *W, here *T) error) {
	wt := reflect.TypeOf((*W)(nil))
	tt := reflect.TypeOf((*T)(nil))
	registerWalkerHook(wt, tt, func(wAny any, here Entity) error {
		w, ok := wAny.(*W)
		if !ok {
			return nil
		}
		t, ok := here.(*T)
		if !ok {
			return nil
		}
		return fn(w, t)
	})
}

// OnVisitAny registers a catch-all hook on walker type W, firing for
// every visited entity regardless of type (spec §4.6: "call with no
// args = catch-all").
func OnVisitAny[W any](fn func(w *W, here Entity) error) {
	wt := reflect.TypeOf((*W)(nil))
	registerWalkerHook(wt, nil, func(wAny any, here Entity) error {
		w, ok := wAny.(*W)
		if !ok {
			return nil
		}
		return fn(w, here)
	})
}

func registerWalkerHook(wt, tt reflect.Type, fn func(w any, here Entity) error) {
	hookMu.Lock()
	defer hookMu.Unlock()
	walkerHooks[wt] = append(walkerHooks[wt], walkerHookEntry{entityType: tt, fn: fn})
}

// OnEntityVisit registers a hook on Node/Edge subclass T firing when
// visited by a Walker of concrete type V (spec §4.6's targeting rule:
// "a Node/Edge subclass may only target Walker subclasses").
func OnEntityVisit[T any, V any](fn func(here *T, visitor *V) error) {
	tt := reflect.TypeOf((*T)(nil))
	vt := reflect.TypeOf((*V)(nil))
	registerEntityHook(tt, vt, func(hereAny Entity, visitorAny any) error {
		t, ok := hereAny.(*T)
		if !ok {
			return nil
		}
		v, ok := visitorAny.(*V)
		if !ok {
			return nil
		}
		return fn(t, v)
	})
}

// OnEntityVisitAny registers a catch-all hook on T firing for any
// visiting walker type (spec §9 decision 4).
func OnEntityVisitAny[T any](fn func(here *T, visitor any) error) {
	tt := reflect.TypeOf((*T)(nil))
	registerEntityHook(tt, nil, func(hereAny Entity, visitorAny any) error {
		t, ok := hereAny.(*T)
		if !ok {
			return nil
		}
		return fn(t, visitorAny)
	})
}

func registerEntityHook(tt, vt reflect.Type, fn func(here Entity, visitor any) error) {
	hookMu.Lock()
	defer hookMu.Unlock()
	entityHooks[tt] = append(entityHooks[tt], entityHookEntry{walkerType: vt, fn: fn})
}

// dispatchVisit fires, in order, walker-hooks-then-entity-hooks (spec
// §9 decision 3) for one visited entity. wSelf is the concrete walker
// value (e.g. *MyWalker) so hook lookup is keyed by its exact runtime
// type; w is the embedded base used for Skip() bookkeeping.
func dispatchVisit(w *Walker, wSelf any, here Entity) error {
	wt := reflect.TypeOf(wSelf)
	et := reflect.TypeOf(here)

	hookMu.RLock()
	wHooks := append([]walkerHookEntry(nil), walkerHooks[wt]...)
	eHooks := append([]entityHookEntry(nil), entityHooks[et]...)
	hookMu.RUnlock()

	for _, h := range wHooks {
		if h.entityType != nil && h.entityType != et {
			continue
		}
		if err := h.fn(wSelf, here); err != nil {
			return err
		}
		if w.consumeSkip() {
			return nil
		}
	}
	for _, h := range eHooks {
		if h.walkerType != nil && h.walkerType != wt {
			continue
		}
		if err := h.fn(here, wSelf); err != nil {
			return err
		}
		if w.consumeSkip() {
			return nil
		}
	}
	return nil
}

// consumeSkip reports whether Skip() was called since the last check,
// clearing the flag.
func (w *Walker) consumeSkip() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.skipRequested {
		w.skipRequested = false
		return true
	}
	return false
}
