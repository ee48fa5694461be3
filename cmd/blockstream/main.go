package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/l1jgo/blockstream/internal/config"
	"github.com/l1jgo/blockstream/internal/core/event"
	coresys "github.com/l1jgo/blockstream/internal/core/system"
	"github.com/l1jgo/blockstream/internal/gen"
	"github.com/l1jgo/blockstream/internal/handler"
	gonet "github.com/l1jgo/blockstream/internal/net"
	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/persist"
	"github.com/l1jgo/blockstream/internal/scripting"
	"github.com/l1jgo/blockstream/internal/system"
	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, protocol int32) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             blockstream  v0.1.0           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        區塊串流 · Go 世界伺服器核心       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(協定: %d)\033[0m\n\n", serverName, protocol)
}

// displayWidth counts CJK runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := max(46-displayWidth(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, value any) {
	valStr := fmt.Sprint(value)
	dotsLen := max(42-displayWidth(label)-len(valStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), valStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("BLOCKSTREAM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, packet.ProtocolVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Chunk generator
	printSection("區塊生成")
	generator, closeGen, err := newGenerator(cfg.World, log)
	if err != nil {
		return err
	}
	defer closeGen()

	// 4. Optional chunk store
	var stored *persist.StoredGenerator
	if cfg.Database.Enabled {
		printSection("資料庫")
		dbCtx, dbCancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.Open(dbCtx, cfg.Database, log)
		dbCancel()
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功，遷移完成")

		repo, err := persist.NewChunkRepo(db)
		if err != nil {
			return fmt.Errorf("chunk repo: %w", err)
		}
		defer repo.Close()

		storeName := cfg.World.Generator
		if n, err := repo.Count(ctx, storeName); err == nil {
			printStat("已儲存區塊", n)
		}
		stored = persist.NewStoredGenerator(storeName, generator, repo, persist.StoredGeneratorOptions{}, log)
		go stored.Run(ctx)
		generator = stored
	}
	fmt.Println()

	// 5. Shared state
	compose := gonet.NewCompose(cfg.Network.CompressionThreshold, cfg.Network.CompressionLevel)
	cache := world.NewChunkCache(generator, compose, world.ChunkCacheOptions{
		Workers:      cfg.World.GenerationWorkers,
		BorderChunks: cfg.World.BorderChunks,
	}, log)
	defer cache.Close()

	worldState := world.NewState(world.NewLookups())
	bus := event.NewBus()
	broadcast := gonet.NewBroadcast()
	store := gonet.NewSessionStore()
	spawn := mgl64.Vec3{cfg.World.SpawnX, cfg.World.SpawnY, cfg.World.SpawnZ}

	printSection("世界設定")
	printStat("視野半徑 (區塊)", cfg.World.ViewDistance)
	printStat("世界邊界 (區塊)", cfg.World.BorderChunks)
	printStat("生成工作數", cfg.World.GenerationWorkers)
	printStat("壓縮門檻 (位元組)", cfg.Network.CompressionThreshold)
	if cfg.AntiCheat.SpeedCheck {
		printOK(fmt.Sprintf("移動速度檢查已啟用 (上限 %.1f)", cfg.AntiCheat.MaxDisplacement))
	}
	fmt.Println()

	// 6. Systems that handlers depend on
	teleports := &handler.TeleportIDs{}
	joinSys := system.NewJoinSystem(ctx, worldState, cache, compose, bus, broadcast, system.JoinOptions{
		Spawn:        spawn,
		ViewDistance: cfg.World.ViewDistance,
		MaxPlayers:   cfg.Server.MaxPlayers,
		Teleports:    teleports,
	}, log)

	// 7. Packet registry
	pktReg := packet.NewRegistry(log)
	deps := &handler.Deps{
		Config:    cfg,
		Compose:   compose,
		Lookups:   worldState.Lookups(),
		Joins:     joinSys,
		Log:       log,
		Teleports: teleports,
	}
	handler.RegisterAll(pktReg, deps)

	// 8. Network server
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, gonet.SessionOptions{
		InQueueSize:      cfg.Network.InQueueSize,
		OutQueueSize:     cfg.Network.OutQueueSize,
		PacketsPerSecond: cfg.Network.PacketsPerSecond,
		WriteTimeout:     cfg.Network.WriteTimeout,
		ReadTimeout:      cfg.Network.ReadTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	// 9. Register systems with runner
	workers := cfg.Network.Workers
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer, pktReg, store, worldState, bus, broadcast, compose, system.InputOptions{
		MaxPacketsPerTick: cfg.Network.MaxPacketsPerTick,
		MaxDecodeErrors:   cfg.Network.MaxDecodeErrors,
		Workers:           workers,
	}, log))
	runner.Register(system.NewEventSystem(bus, log))
	runner.Register(joinSys)
	runner.Register(system.NewChunkInterestSystem(worldState, compose, cfg.World.ViewDistance, workers))
	drainSys := system.NewChunkDrainSystem(worldState, cache, workers, log)
	runner.Register(drainSys)
	runner.Register(system.NewOutputSystem(store, worldState, broadcast, compose, cfg.Network.KeepAliveInterval))
	runner.Register(system.NewCleanupSystem(worldState))

	system.SubscribeCommands(bus, worldState, compose, log)
	event.Subscribe(bus, func(ev event.PlayerDisconnected) {
		log.Debug("實體已移除", zap.Uint64("entity", uint64(ev.EntityID)), zap.Uint64("session", ev.SessionID))
	})

	// 10. Start tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	printReady(fmt.Sprintf("遊戲迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	const statsInterval = 1200 // ticks between status lines
	for {
		select {
		case <-ticker.C:
			start := time.Now()
			runner.Tick(cfg.Network.TickRate)
			if took := time.Since(start); took > cfg.Network.TickRate {
				log.Warn("tick 超時", zap.Duration("took", took), zap.Uint64("tick", runner.Ticks()))
			}
			if runner.Ticks()%statsInterval == 0 {
				log.Info("伺服器狀態",
					zap.Int("sessions", store.Count()),
					zap.Int("players", worldState.PlayerCount()),
					zap.Int("cached_chunks", cache.Len()),
					zap.Int64("generated", cache.Spawned()),
					zap.Int64("delivered", drainSys.Delivered()),
				)
			}
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			netServer.Shutdown()
			for _, sess := range store.Raw() {
				sess.Close()
			}
			cache.Close()
			cancel()
			if stored != nil {
				<-stored.Done()
			}
			log.Info("伺服器已停止")
			return nil
		}
	}
}

// newGenerator builds the generator named by cfg.Generator. The returned
// func releases whatever the generator holds.
func newGenerator(cfg config.WorldConfig, log *zap.Logger) (world.Generator, func(), error) {
	switch cfg.Generator {
	case "lua":
		engine, err := scripting.NewEngine([]string{cfg.LuaScript}, cfg.LuaStates, log)
		if err != nil {
			return nil, nil, fmt.Errorf("lua generator: %w", err)
		}
		printOK(fmt.Sprintf("Lua 生成腳本已載入 %s", cfg.LuaScript))
		printStat("Lua 虛擬機", engine.Size())
		return gen.NewLuaGenerator(engine, cfg.Sections), engine.Close, nil
	default:
		preset, err := gen.LoadFlatPreset(cfg.FlatPreset)
		if err != nil {
			return nil, nil, fmt.Errorf("flat generator: %w", err)
		}
		printOK(fmt.Sprintf("平坦世界預設已載入 %s", cfg.FlatPreset))
		printStat("區段數", preset.Sections)
		return gen.NewFlatGenerator(preset), func() {}, nil
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
