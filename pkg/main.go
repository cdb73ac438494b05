package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	pkg "git.solsynth.dev/hypernet/ballot/pkg/internal"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/auth"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/cache"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/database"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/grpc"
	server "git.solsynth.dev/hypernet/ballot/pkg/internal/http"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/kv"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/services"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Booting screen
	fmt.Println(color.YellowString(" ____        _ _       _\n| __ )  __ _| | | ___ | |_\n|  _ \\ / _` | | |/ _ \\| __|\n| |_) | (_| | | | (_) | |_\n|____/ \\__,_|_|_|\\___/ \\__|"))
	fmt.Printf("%s v%s\n", color.New(color.FgHiYellow).Add(color.Bold).Sprintf("Hypernet.Ballot"), pkg.AppVersion)
	fmt.Printf("The append-only poll ledger in Hypernet\n")
	color.HiBlack("=====================================================\n")

	// Configure settings
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("An error occurred when loading .env file.")
	}
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("BALLOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("storage.driver", "postgres")
	viper.SetDefault("cache.ttl", "30s")
	viper.SetDefault("audit.schedule", "@every 30m")

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}

	program := address.DefaultProgram
	if val := viper.GetString("ledger.program_id"); len(val) > 0 {
		var err error
		if program, err = address.Parse(val); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when parsing ledger program id.")
		}
	}
	log.Info().Str("program", program.String()).Msg("Ledger program loaded.")

	// Connect to storage
	var store ledger.Store
	switch driver := viper.GetString("storage.driver"); driver {
	case "postgres":
		if err := database.NewGorm(); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when connect to database.")
		} else if err := database.RunMigration(database.C); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
		}
		store = database.NewStore(database.C)
	case "redis":
		if err := kv.NewClient(); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when connect to redis.")
		}
		store = kv.NewStore(kv.C, viper.GetString("redis.prefix"))
	case "memory":
		log.Warn().Msg("Using in-memory storage, every record will be lost on exit.")
		store = ledger.NewMemoryStore()
	default:
		log.Fatal().Str("driver", driver).Msg("Unknown storage driver.")
	}

	// Initialize cache
	ledgerSvc := services.NewLedger(store, program)
	if err := cache.NewStore(); err != nil {
		log.Error().Err(err).Msg("An error occurred when initializing cache, poll reads will not be cached.")
	} else {
		ledgerSvc.Cache = cache.NewMarshaler()
		ledgerSvc.CacheTTL = viper.GetDuration("cache.ttl")
	}

	authn := auth.Authenticator{Leeway: viper.GetDuration("auth.leeway")}

	// Configure timed tasks
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	if _, err := quartz.AddFunc(viper.GetString("audit.schedule"), ledgerSvc.DoAutoTallyAudit); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when scheduling tally audit.")
	}
	quartz.Start()

	// Server
	go server.NewServer(ledgerSvc, authn).Listen()

	grpcSrv := grpc.NewGrpc(ledgerSvc, authn)
	go func() {
		if err := grpcSrv.Listen(); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when starting grpc server...")
		}
	}()

	// Messages
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	grpcSrv.Stop()
	quartz.Stop()
}
