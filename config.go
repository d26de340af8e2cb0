package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings
type Config struct {
	Addr       string // listen address
	MapsDir    string // directory of *.txt layouts
	PublicURL  string // join URL encoded in /qr.png, derived from the request when empty
	ResultsDSN string // sqlite DSN for the results ledger

	GridWidth  int
	GridHeight int

	BombFuse          time.Duration
	BlastRadius       int
	TickRate          int // ticks per second
	MinPlayers        int
	GameOverDuration  time.Duration
	RoundDuration     time.Duration // after this the round enters endgame
	EndgameBombChance float64       // per-tick chance of a random bomb in endgame
	WinDelay          time.Duration // grace between win condition and GAME_OVER
}

// DefaultConfig returns the stock arena settings
func DefaultConfig() Config {
	return Config{
		Addr:              ":8765",
		MapsDir:           "maps",
		ResultsDSN:        ":memory:",
		GridWidth:         20,
		GridHeight:        15,
		BombFuse:          3 * time.Second,
		BlastRadius:       2,
		TickRate:          60,
		MinPlayers:        2,
		GameOverDuration:  5 * time.Second,
		RoundDuration:     120 * time.Second,
		EndgameBombChance: 0.004,
		WinDelay:          3 * time.Second,
	}
}

// TickDuration is the interval between simulation steps
func (c Config) TickDuration() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Validate rejects settings the simulation cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.GridWidth <= 0 || c.GridHeight <= 0 {
		errs = append(errs, fmt.Errorf("grid must be positive, got %dx%d", c.GridWidth, c.GridHeight))
	}
	if c.BlastRadius <= 0 {
		errs = append(errs, fmt.Errorf("blast radius must be positive, got %d", c.BlastRadius))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick rate must be positive, got %d", c.TickRate))
	}
	if c.MinPlayers < 1 {
		errs = append(errs, fmt.Errorf("min players must be at least 1, got %d", c.MinPlayers))
	}
	if c.EndgameBombChance < 0 || c.EndgameBombChance > 1 {
		errs = append(errs, fmt.Errorf("endgame bomb chance must be in [0,1], got %v", c.EndgameBombChance))
	}
	if c.BombFuse < 0 || c.WinDelay < 0 || c.GameOverDuration < 0 || c.RoundDuration < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads .env (if any), then environment, then command-line flags
func LoadConfig(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf(".env not loaded: %v", err)
	}

	cfg := DefaultConfig()
	env := envReader{}
	cfg.Addr = env.asString("ARENA_ADDR", cfg.Addr)
	cfg.MapsDir = env.asString("ARENA_MAPS_DIR", cfg.MapsDir)
	cfg.PublicURL = env.asString("ARENA_PUBLIC_URL", cfg.PublicURL)
	cfg.ResultsDSN = env.asString("ARENA_RESULTS_DSN", cfg.ResultsDSN)
	cfg.GridWidth = env.asInt("ARENA_GRID_WIDTH", cfg.GridWidth)
	cfg.GridHeight = env.asInt("ARENA_GRID_HEIGHT", cfg.GridHeight)
	cfg.BombFuse = env.asDuration("ARENA_BOMB_FUSE", cfg.BombFuse)
	cfg.BlastRadius = env.asInt("ARENA_BLAST_RADIUS", cfg.BlastRadius)
	cfg.TickRate = env.asInt("ARENA_TICK_RATE", cfg.TickRate)
	cfg.MinPlayers = env.asInt("ARENA_MIN_PLAYERS", cfg.MinPlayers)
	cfg.GameOverDuration = env.asDuration("ARENA_GAME_OVER_DURATION", cfg.GameOverDuration)
	cfg.RoundDuration = env.asDuration("ARENA_ROUND_DURATION", cfg.RoundDuration)
	cfg.EndgameBombChance = env.asFloat("ARENA_ENDGAME_BOMB_CHANCE", cfg.EndgameBombChance)
	cfg.WinDelay = env.asDuration("ARENA_WIN_DELAY", cfg.WinDelay)
	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("arena", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.MapsDir, "maps", cfg.MapsDir, "directory with map layouts")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "websocket URL shown in the join QR code")
	fs.StringVar(&cfg.ResultsDSN, "results", cfg.ResultsDSN, "sqlite DSN for round results")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// envReader collects parse errors instead of failing on the first one
type envReader struct {
	errs []error
}

func (r *envReader) asString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r *envReader) asInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer: %w", key, err))
		return def
	}
	return n
}

func (r *envReader) asFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a number: %w", key, err))
		return def
	}
	return f
}

func (r *envReader) asDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration: %w", key, err))
		return def
	}
	return d
}
