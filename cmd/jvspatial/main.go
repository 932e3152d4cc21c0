// Package main provides the jvspatial-go CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/TrueSelph/jvspatial-go/pkg/config"
	"github.com/TrueSelph/jvspatial-go/pkg/jvspatial"
	"github.com/TrueSelph/jvspatial-go/pkg/registry"
	"github.com/TrueSelph/jvspatial-go/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jvspatial",
		Short: "jvspatial-go - object-spatial graph runtime for Go",
		Long: `jvspatial-go is a persistent, object-spatial graph library: Nodes,
Edges, and Walkers form a typed entity model, traversal dispatches
visit hooks as walkers move across the graph, and a single Mongo-style
filter/update engine drives every query against a pluggable storage
backend (in-memory, file, or Badger-backed docstore).`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jvspatial-go v%s (%s)\n", version, commit)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new jvspatial data directory",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "./data", "Data directory")
	rootCmd.AddCommand(initCmd)

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Build a small City graph and walk it, printing the trail",
		RunE:  runDemo,
	}
	demoCmd.Flags().String("data-dir", "", "Data directory (default: in-memory)")
	rootCmd.AddCommand(demoCmd)

	queryCmd := &cobra.Command{
		Use:   "query [collection] [json-filter]",
		Short: "Run a filter document against a collection and print matches",
		Args:  cobra.ExactArgs(2),
		RunE:  runQuery,
	}
	queryCmd.Flags().String("data-dir", "./data", "Data directory")
	rootCmd.AddCommand(queryCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	fmt.Printf("📂 Initializing jvspatial data directory in %s\n", dataDir)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dataDir, "jvspatial.yaml")
	configContent := `# jvspatial-go configuration
database:
  type: file
  file_path: ` + dataDir + `

walker:
  protection_enabled: true
  max_steps: 10000
  max_visits_per_node: 100
  max_execution_time: 300s
  max_queue_size: 1000

server:
  address: 0.0.0.0
  port: 0
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Println("✅ Data directory initialized")
	fmt.Printf("   Config: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next: JVSPATIAL_CONFIG_FILE=" + configPath + " jvspatial demo")
	return nil
}

// City and Road are the demo subcommand's own Node/Edge subclasses,
// registered with the entity registry so records loaded back from
// disk decode into the right Go type.
type City struct {
	jvspatial.Node
}

type Road struct {
	jvspatial.Edge
}

// TourWalker records the order in which it visits cities and follows
// every outbound road it finds.
type TourWalker struct {
	jvspatial.Walker

	GC    *jvspatial.GraphContext
	Order []string
}

func init() {
	registry.Default.Register("City", func() any { return &City{} })
	registry.Default.Register("Road", func() any { return &Road{} })

	jvspatial.OnVisit[TourWalker, City](func(w *TourWalker, here *City) error {
		w.Order = append(w.Order, fmt.Sprintf("%s (%v)", here.Get("name"), here.Get("population")))
		neighbors, err := jvspatial.Nodes(context.Background(), w.GC, here, jvspatial.NodesOptions{Direction: "out"})
		if err != nil {
			return err
		}
		w.Visit(neighbors...)
		return nil
	})
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dataDir, _ := cmd.Flags().GetString("data-dir")

	var backend storage.Backend
	var err error
	if dataDir == "" {
		fmt.Println("🧪 Using an in-memory backend (pass --data-dir to persist)")
		backend = storage.NewMemDB()
	} else {
		backend, err = storage.NewFileDB(storage.FileDBOptions{Root: dataDir})
		if err != nil {
			return fmt.Errorf("opening file backend: %w", err)
		}
	}
	gc := jvspatial.NewContext(backend)
	defer gc.Close()

	fmt.Println("🏙️  Building a small city graph...")
	alpha, err := jvspatial.Create[City](ctx, gc, "City", map[string]any{"name": "Alpha", "population": 120000})
	if err != nil {
		return err
	}
	beta, err := jvspatial.Create[City](ctx, gc, "City", map[string]any{"name": "Beta", "population": 45000})
	if err != nil {
		return err
	}
	gamma, err := jvspatial.Create[City](ctx, gc, "City", map[string]any{"name": "Gamma", "population": 900000})
	if err != nil {
		return err
	}

	if _, err := jvspatial.ConnectAs[Road](ctx, gc, alpha, beta, "out", map[string]any{"distance_km": 38}); err != nil {
		return err
	}
	if _, err := jvspatial.ConnectAs[Road](ctx, gc, alpha, gamma, "out", map[string]any{"distance_km": 210}); err != nil {
		return err
	}

	cfg := config.LoadFromEnv().Walker

	w := &TourWalker{GC: gc}
	w.InitWalker(jvspatial.NewID("o", "TourWalker"), "TourWalker", nil, 0)

	fmt.Println("🚶 Spawning a walker at Alpha...")
	result, err := jvspatial.Spawn(ctx, gc, w, cfg, alpha)
	if err != nil {
		return fmt.Errorf("walk failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Visit order:")
	for i, step := range result.Order {
		fmt.Printf("  %d. %s\n", i+1, step)
	}
	fmt.Printf("\nSteps taken: %d, final state: %s\n", result.StepCount(), result.State())
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dataDir, _ := cmd.Flags().GetString("data-dir")
	collection, filterJSON := args[0], args[1]

	backend, err := storage.NewFileDB(storage.FileDBOptions{Root: dataDir})
	if err != nil {
		return fmt.Errorf("opening file backend: %w", err)
	}
	defer backend.Close()

	filter, err := parseFilterJSON(filterJSON)
	if err != nil {
		return fmt.Errorf("parsing filter: %w", err)
	}

	start := time.Now()
	recs, err := backend.Find(ctx, collection, filter, storage.FindOptions{})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	fmt.Printf("🔎 %d match(es) in %v\n", len(recs), time.Since(start))
	for _, rec := range recs {
		fmt.Printf("  %v\n", rec)
	}
	return nil
}

func parseFilterJSON(raw string) (map[string]any, error) {
	var filter map[string]any
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		return nil, err
	}
	return filter, nil
}
