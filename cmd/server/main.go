package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kiliankoe/semadash/internal/capture"
	"github.com/kiliankoe/semadash/internal/config"
	"github.com/kiliankoe/semadash/internal/game"
	"github.com/kiliankoe/semadash/internal/recognition"
	"github.com/kiliankoe/semadash/internal/ws"
	staticserver "github.com/kiliankoe/semadash/static"
)

const version = "v1.0.0"

func main() {
	cfg := config.Default()
	cobra.CheckErr(newCmd(&cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SEMADASH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "semadash",
		Short:         "Camera-based flag-semaphore party game server.",
		Args:          cobra.ExactArgs(0),
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on (env: SEMADASH_PORT)")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "externally reachable URL, used for the join QR code (env: SEMADASH_PUBLIC_URL)")
	fs.StringVar(&cfg.RecognitionURL, "recognition-url", cfg.RecognitionURL, "base URL of the semaphore recognition service (env: SEMADASH_RECOGNITION_URL)")
	fs.Float64Var(&cfg.ConfidenceThreshold, "confidence-threshold", cfg.ConfidenceThreshold, "minimum classifier confidence to accept a letter (env: SEMADASH_CONFIDENCE_THRESHOLD)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "how often to poll the recognition service (env: SEMADASH_POLL_INTERVAL)")
	fs.IntVar(&cfg.SingleDuration, "single-duration", cfg.SingleDuration, "single-player round length in seconds (env: SEMADASH_SINGLE_DURATION)")
	fs.IntVar(&cfg.MultiDuration, "multiplayer-duration", cfg.MultiDuration, "multiplayer turn length in seconds (env: SEMADASH_MULTIPLAYER_DURATION)")
	fs.IntVar(&cfg.ScorePerCorrect, "score-per-correct", cfg.ScorePerCorrect, "points awarded per correct letter (env: SEMADASH_SCORE_PER_CORRECT)")
	fs.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "maximum players per tournament (env: SEMADASH_MAX_PLAYERS)")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "completed sessions kept in history (env: SEMADASH_HISTORY_LIMIT)")
	fs.DurationVar(&cfg.IntroDelay, "intro-delay", cfg.IntroDelay, "pause before a turn auto-starts (env: SEMADASH_INTRO_DELAY)")
	fs.DurationVar(&cfg.SettleDelay, "settle-delay", cfg.SettleDelay, "pause between multiplayer turns (env: SEMADASH_SETTLE_DELAY)")
	fs.BoolVar(&cfg.ExportEnabled, "export-enabled", cfg.ExportEnabled, "append finished sessions to the export file (env: SEMADASH_EXPORT_ENABLED)")
	fs.StringVar(&cfg.ExportFile, "export-file", cfg.ExportFile, "path of the results export file (env: SEMADASH_EXPORT_FILE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("semadash {{.Version}}\n")

	return cmd
}

func run(cfg *config.Config) error {
	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		zerologlog.Info().Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	// QR code with the join URL, for getting phones into the room quickly.
	r.GET("/qr", func(c *gin.Context) {
		png, err := qrcode.Encode(cfg.PublicURL, qrcode.Medium, 256)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	client := recognition.New(cfg.RecognitionURL, cfg.ConfidenceThreshold)

	gameCfg := game.Config{
		SingleDuration:  cfg.SingleDuration,
		MultiDuration:   cfg.MultiDuration,
		ScorePerCorrect: cfg.ScorePerCorrect,
		MaxPlayers:      cfg.MaxPlayers,
		HistoryLimit:    cfg.HistoryLimit,
		IntroDelay:      cfg.IntroDelay,
		SettleDelay:     cfg.SettleDelay,
	}
	state := game.NewState(gameCfg)
	sched := game.NewScheduler(cfg.PollInterval, time.Second)
	frames := capture.NewLatest()
	ctrl := game.NewController(gameCfg, state, sched, client, frames)
	if cfg.ExportEnabled {
		ctrl.SetExportFile(cfg.ExportFile)
	}

	sock := ws.New(ctrl, frames)
	io := sock.Mount(r)
	defer io.Close()

	// Startup liveness probe; an unreachable classifier is worth a warning
	// and a heads-up to connecting clients, but games can still be set up
	// without it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		zerologlog.Warn().Err(err).Str("url", cfg.RecognitionURL).Msg("recognition service unreachable")
		sock.SetRecognitionUp(false)
	} else {
		zerologlog.Info().Str("url", cfg.RecognitionURL).Msg("recognition service connected")
	}

	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	zerologlog.Info().Str("port", cfg.Port).Msg("listening")
	return r.Run(":" + cfg.Port)
}
