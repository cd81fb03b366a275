package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/streamdsl/pkg/broker"
	"github.com/ajitpratap0/streamdsl/pkg/config"
	"github.com/ajitpratap0/streamdsl/pkg/dsl"
	"github.com/ajitpratap0/streamdsl/pkg/logger"
	"github.com/ajitpratap0/streamdsl/pkg/store"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "streamdsl",
		Short: "streamdsl - declarative stream processing over Kafka topics",
		Long: `streamdsl builds single-process stream-processing topologies: a fluent
chain of transformations (map, filter, stateful aggregation, joins) over
events from a Kafka topic, optionally republished to an output topic.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("streamdsl v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newWordCountCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newWordCountCmd builds the demo topology: stdin lines are tokenized into
// {key} events, counted by key against the configured store, and the
// running counts are produced to the output topic.
func newWordCountCmd() *cobra.Command {
	var (
		configPath  string
		outputTopic string
		produceMode string
		partitions  int32
	)

	cmd := &cobra.Command{
		Use:   "wordcount",
		Short: "Run a word-count topology from stdin to a Kafka topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				if err := config.Load(configPath, &cfg); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := logger.Init(logger.Config{
				Level:       cfg.Observability.LogLevel,
				Development: cfg.Observability.Development,
				Encoding:    "json",
			}); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.Get()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			st, closeStore, err := buildStore(ctx, cfg.Store, log)
			if err != nil {
				return err
			}
			defer closeStore()

			client := broker.NewSaramaClient(cfg.Broker, log)
			if err := client.Connect(); err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			pipeline, err := dsl.New("wordcount", st, client,
				dsl.WithLogger(log), dsl.WithBaseContext(ctx))
			if err != nil {
				return err
			}

			pipeline.
				Map(func(v interface{}) (interface{}, error) {
					word, _ := v.(string)
					return map[string]interface{}{"key": strings.TrimSpace(word)}, nil
				}).
				Filter(func(v interface{}) bool {
					m, _ := v.(map[string]interface{})
					key, _ := m["key"].(string)
					return key != ""
				}).
				CountByKey("key", "count")

			if err := pipeline.To(ctx, outputTopic,
				dsl.WithPartitions(partitions),
				dsl.WithProduceMode(produceMode),
				dsl.WithProducerErrorHandler(func(err error) {
					log.Error("production error", zap.Error(err))
				})); err != nil {
				return err
			}

			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					for _, word := range strings.Fields(scanner.Text()) {
						pipeline.WriteToStream(word)
					}
				}
				pipeline.Close()
			}()

			log.Info("word-count topology running",
				zap.String("output_topic", outputTopic),
				zap.String("mode", produceMode))
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration")
	cmd.Flags().StringVarP(&outputTopic, "output", "o", "wordcount-output", "Output topic")
	cmd.Flags().StringVarP(&produceMode, "mode", "m", "send", "Produce mode (send, buffer, buffer_format)")
	cmd.Flags().Int32VarP(&partitions, "partitions", "p", 1, "Output topic partition count")
	return cmd
}

func buildStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (store.KeyedStore, func(), error) {
	switch cfg.Type {
	case "", "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "mongodb":
		s, err := store.NewMongoStore(ctx, cfg.URI, cfg.Database, cfg.Collection, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
