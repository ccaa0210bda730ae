package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nyiyui.ca/hato/interlocking/config"
	"nyiyui.ca/hato/interlocking/interlock"
	"nyiyui.ca/hato/interlocking/point"
	"nyiyui.ca/hato/interlocking/signalbox"
	"nyiyui.ca/hato/interlocking/store"
	"nyiyui.ca/hato/interlocking/ui"
)

var (
	configPath = flag.String("config", "", "path to config file (defaults are used if empty)")
	listen     = flag.String("listen", "", "override listen address")
	withUI     = flag.Bool("ui", false, "show the terminal panel")
	logFile    = flag.String("log-file", "", "log to this file instead of stderr (interlocking.log if -ui)")
	pprofAddr  = flag.String("pprof", "", "serve pprof on this address")
)

func main() {
	level := zap.LevelFlag("log-level", zap.InfoLevel, "set log level")
	flag.Parse()
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(*level)
	if *logFile == "" && *withUI {
		*logFile = "interlocking.log"
	}
	if *logFile != "" {
		cfg.OutputPaths = []string{*logFile}
		cfg.ErrorOutputPaths = []string{*logFile}
	}
	dev, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(dev)
	defer zap.S().Sync()

	if *pprofAddr != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}
	err = main2()
	if err != nil {
		zap.S().Errorw("exiting", "err", err)
		log.Print(err)
		os.Exit(3)
	}
}

func loadConfig() (config.Config, error) {
	c := config.Default()
	if *configPath != "" {
		var err error
		c, err = config.Load(*configPath)
		if err != nil {
			return config.Config{}, err
		}
	}
	if *listen != "" {
		c.Listen = *listen
	}
	return c, nil
}

func newDriver(c config.Driver) (point.Driver, func() error, error) {
	switch c.Kind {
	case "serial":
		sc, err := c.Serial.Conf()
		if err != nil {
			return nil, nil, err
		}
		path := c.Serial.Path
		if path == "auto" {
			var id point.DeviceID
			path, id, err = point.Find(c.Serial.Device, c.Serial.Baud)
			if err != nil {
				return nil, nil, err
			}
			zap.S().Infow("found controller", "path", path, "id", id)
		}
		s, err := point.OpenSerial(path, c.Serial.Baud, sc)
		if err != nil {
			return nil, nil, fmt.Errorf("serial driver: %w", err)
		}
		return s, s.Close, nil
	default:
		return point.NewSim(time.Duration(c.ThrowTime)), func() error { return nil }, nil
	}
}

func newMachine(c config.Config, st *store.Store, conf interlock.Conf) (*interlock.Machine, error) {
	snap, ok, err := st.Load()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.DBPath, err)
	}
	if ok {
		m := interlock.New(conf)
		if err := m.Import(snap); err != nil {
			return nil, fmt.Errorf("import %s: %w", c.DBPath, err)
		}
		zap.S().Infow("loaded layout", "path", c.DBPath, "tracks", len(snap.Tracks), "routes", len(snap.Routes))
		return m, nil
	}
	switch c.Preset {
	case "station":
		zap.S().Infow("using preset", "preset", c.Preset)
		return interlock.InitStation(conf)
	default:
		return interlock.New(conf), nil
	}
}

func main2() error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	driver, closeDriver, err := newDriver(c.Driver)
	if err != nil {
		return err
	}
	defer closeDriver()

	st, err := store.Open(c.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := newMachine(c, st, interlock.Conf{Driver: driver, Context: ctx})
	if err != nil {
		return err
	}
	defer m.Close()
	if err := st.Save(m.Export()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	go st.Follow(ctx, m)

	gin.SetMode(gin.ReleaseMode)
	sb := signalbox.NewServer(m)
	defer sb.Close()
	srv := &http.Server{Addr: c.Listen, Handler: signalbox.WithCORS(sb, c.CORSOrigins)}
	serveErr := make(chan error, 1)
	go func() {
		zap.S().Infow("listening", "addr", c.Listen)
		serveErr <- srv.ListenAndServe()
	}()

	if *withUI {
		go func() {
			if err := ui.NewPanel(m).Run(ctx); err != nil {
				zap.S().Errorw("panel", "err", err)
			}
			cancel()
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Warnw("shutdown", "err", err)
	}
	if err := st.Save(m.Export()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	zap.S().Info("bye")
	return nil
}
