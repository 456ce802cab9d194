package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/hyperfold"
	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/node/api"
	"github.com/absmach/hyperfold/node/middleware"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/mqtt"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage/factory"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "hyperfold-node"
	defHTTPPort   = "9010"
	envPrefixHTTP = "HYPERFOLD_HTTP_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel       string         `env:"HYPERFOLD_LOG_LEVEL"       envDefault:"info"`
	InstanceID     string         `env:"HYPERFOLD_INSTANCE_ID"`
	ConfigPath     string         `env:"HYPERFOLD_CONFIG_PATH"`
	NodeID         string         `env:"HYPERFOLD_NODE_ID"`
	NodeAddress    string         `env:"HYPERFOLD_NODE_ADDRESS"`
	NodeRole       string         `env:"HYPERFOLD_NODE_ROLE"`
	Seeds          []string       `env:"HYPERFOLD_SEEDS"           envSeparator:","`
	PeerTTL        time.Duration  `env:"HYPERFOLD_PEER_TTL"        envDefault:"60s"`
	GossipFanout   int            `env:"HYPERFOLD_GOSSIP_FANOUT"   envDefault:"3"`
	GossipInterval time.Duration  `env:"HYPERFOLD_GOSSIP_INTERVAL" envDefault:"2s"`
	LearningRate   float64        `env:"HYPERFOLD_LEARNING_RATE"`
	MQTTAddress    string         `env:"HYPERFOLD_MQTT_ADDRESS"    envDefault:"tcp://localhost:1883"`
	MQTTQoS        uint8          `env:"HYPERFOLD_MQTT_QOS"        envDefault:"1"`
	MQTTTimeout    time.Duration  `env:"HYPERFOLD_MQTT_TIMEOUT"    envDefault:"30s"`
	ClientID       string         `env:"HYPERFOLD_CLIENT_ID"`
	ClientKey      string         `env:"HYPERFOLD_CLIENT_KEY"`
	DomainID       string         `env:"HYPERFOLD_DOMAIN_ID"`
	ChannelID      string         `env:"HYPERFOLD_CHANNEL_ID"`
	Storage        factory.Config `envPrefix:"HYPERFOLD_"`
	OTELURL        url.URL        `env:"HYPERFOLD_OTEL_URL"`
	TraceRatio     float64        `env:"HYPERFOLD_TRACE_RATIO"     envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	nodeCfg, shapes, lr, err := loadNodeConfig(cfg)
	if err != nil {
		logger.Error("failed to load node configuration", slog.String("error", err.Error()))

		return
	}
	logger.Info("Node configured",
		slog.String("id", nodeCfg.ID),
		slog.String("address", nodeCfg.Address),
		slog.String("role", nodeCfg.Role.String()),
		slog.Int("seeds", len(nodeCfg.Seeds)),
		slog.Int("layers", len(shapes)),
	)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	repo, closer, err := factory.New(cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("error", err.Error()))

		return
	}
	if closer != nil {
		defer closeStorage(closer, logger)
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = nodeCfg.ID
	}
	pubsub, err := mqtt.NewPubSub(mqtt.Config{
		URL:       cfg.MQTTAddress,
		QoS:       cfg.MQTTQoS,
		ID:        clientID,
		Username:  clientID,
		Password:  cfg.ClientKey,
		DomainID:  cfg.DomainID,
		ChannelID: cfg.ChannelID,
		Timeout:   cfg.MQTTTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Error("failed to disconnect mqtt client", slog.Any("error", err))
		}
	}()

	results := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: svcName,
		Subsystem: "aggregator",
		Name:      "aggregation_results",
		Help:      "Number of aggregation outcomes by status.",
	}, []string{"status"})

	opts := []node.Option{node.WithResultsCounter(results)}
	if lr > 0 && nodeCfg.Role == peers.ParameterServer {
		sink, err := node.NewSGD(lr, shapes)
		if err != nil {
			logger.Error("failed to initialize optimizer", slog.String("error", err.Error()))

			return
		}
		opts = append(opts, node.WithModelSink(sink))
	}

	svc := node.NewService(
		nodeCfg,
		peers.NewDirectory(),
		aggregator.New(aggregator.WithLayerShapes(shapes)),
		node.NewMQTTTransport(pubsub, cfg.DomainID, cfg.ChannelID, logger),
		repo,
		logger,
		opts...,
	)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, svcName, cfg.InstanceID), logger)

	g.Go(func() error {
		return svc.Start(ctx)
	})

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

// loadNodeConfig merges the optional TOML file with the environment, the
// environment taking precedence.
func loadNodeConfig(cfg envConfig) (node.Config, map[int]aggregator.LayerShape, float64, error) {
	file := &hyperfold.Config{}
	if cfg.ConfigPath != "" {
		loaded, err := hyperfold.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return node.Config{}, nil, 0, err
		}
		file = loaded
	}

	shapes, err := file.Shapes()
	if err != nil {
		return node.Config{}, nil, 0, err
	}

	role, err := file.Role(peers.Worker)
	if err != nil {
		return node.Config{}, nil, 0, err
	}
	if cfg.NodeRole != "" {
		if role, err = peers.ParseRole(cfg.NodeRole); err != nil {
			return node.Config{}, nil, 0, err
		}
	}

	seeds, err := file.Seeds()
	if err != nil {
		return node.Config{}, nil, 0, err
	}
	if len(cfg.Seeds) > 0 {
		if seeds, err = node.ParseSeeds(cfg.Seeds); err != nil {
			return node.Config{}, nil, 0, err
		}
	}

	id := firstNonEmpty(cfg.NodeID, file.Node.ID)
	if id == "" {
		id = namegenerator.NewGenerator().Generate()
	}
	address := firstNonEmpty(cfg.NodeAddress, file.Node.Address)
	if err := peers.ValidateAddress(address); err != nil {
		return node.Config{}, nil, 0, err
	}

	lr := file.Optimizer.LearningRate
	if cfg.LearningRate > 0 {
		lr = cfg.LearningRate
	}

	return node.Config{
		ID:             id,
		Address:        address,
		Role:           role,
		PeerTTL:        cfg.PeerTTL,
		Fanout:         cfg.GossipFanout,
		GossipInterval: cfg.GossipInterval,
		Seeds:          seeds,
	}, shapes, lr, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func closeStorage(c io.Closer, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close storage", slog.Any("error", err))
	}
}
