package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hewland/promptmix/internal/audio"
	"github.com/hewland/promptmix/internal/config"
	"github.com/hewland/promptmix/internal/effects"
	"github.com/hewland/promptmix/internal/engine"
	"github.com/hewland/promptmix/internal/genconfig"
	"github.com/hewland/promptmix/internal/player"
	"github.com/hewland/promptmix/internal/prompts"
	"github.com/hewland/promptmix/internal/recorder"
	"github.com/hewland/promptmix/internal/session"
	"github.com/hewland/promptmix/internal/stream"
	"github.com/hewland/promptmix/internal/web"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("promptmix starting up...")

	// Playback engine + effects chain
	eng := engine.New(engine.Config{
		BufferSeconds:     cfg.BufferSeconds,
		UnderrunTolerance: cfg.UnderrunTolerance,
		OutputGain:        cfg.OutputGain,
	})
	chain, err := effects.NewChain(audio.SampleRate)
	if err != nil {
		log.Fatalf("Effects chain init failed: %v", err)
	}
	eng.SetInsert(chain)
	go eng.Run(ctx)

	// Prompt store, recorder, and the playback controller
	store := prompts.NewStore(cfg.ThrottleWindow)
	store.ApplyConfig(prompts.NormalizeBank(nil))
	presets := prompts.NewPresetStore(cfg.PresetsPath)
	rec := recorder.New(cfg.OutputDir)

	connect := func(ctx context.Context, cb session.Callbacks) (player.Session, error) {
		return session.Connect(ctx, session.Config{
			URL:    cfg.SessionURL,
			APIKey: cfg.SessionAPIKey,
			Model:  cfg.SessionModel,
		}, cb)
	}
	plr := player.New(eng, store, rec, connect)

	// Configuration service (optional -- built-in banks cover its absence)
	var generator *genconfig.Generator
	if cfg.GenURL != "" {
		client := genconfig.NewClient(cfg.GenURL, cfg.GenModel)
		readyCtx, readyCancel := context.WithTimeout(ctx, 30*time.Second)
		if client.WaitForReady(readyCtx) {
			generator = genconfig.NewGenerator(client)
			log.Printf("Configuration service connected: %s", cfg.GenModel)
		} else {
			log.Println("Configuration service not available, using built-in banks")
		}
		readyCancel()
	} else {
		log.Println("Configuration service not configured (set MIX_GEN_URL to enable)")
	}

	// Broadcaster: fan-out rendered frames to all listeners
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, eng.Frames())
	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	mux := http.NewServeMux()

	// Control surface
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(web.IndexHTML)
	})

	// Audio out
	mux.Handle("/stream", stream.NewMP3Handler(broadcaster))
	mux.Handle("/offer", webrtcHandler)

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"state":     eng.State().String(),
			"status":    plr.Status(),
			"now":       eng.Now(),
			"buffered":  eng.BufferedSeconds(),
			"level":     eng.Level(),
			"prompts":   store.Snapshot(),
			"filtered":  plr.FilteredPrompts(),
			"effects":   chain.Params(),
			"fx_active": eng.EffectsActive(),
			"recording": rec.Recording(),
			"listeners": broadcaster.ListenerCount() + webrtcHandler.PeerCount(),
			"config": map[string]any{
				"model":          cfg.SessionModel,
				"buffer_s":       cfg.BufferSeconds,
				"throttle_ms":    cfg.ThrottleWindow.Milliseconds(),
				"sample_rate":    audio.SampleRate,
				"llm_configured": generator != nil,
			},
		})
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		if err := plr.Play(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "state": eng.State().String()})
	})

	mux.HandleFunc("/api/pause", func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		plr.Pause()
		writeJSON(w, map[string]any{"ok": true, "state": eng.State().String()})
	})

	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		plr.Stop()
		writeJSON(w, map[string]any{"ok": true, "state": eng.State().String()})
	})

	mux.HandleFunc("/api/prompts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, store.Snapshot())
		case http.MethodPost:
			var req struct {
				Style   string           `json:"style"`
				Configs []prompts.Config `json:"configs"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			var bank []prompts.Config
			switch {
			case len(req.Configs) > 0:
				bank = prompts.NormalizeBank(req.Configs)
			case req.Style != "" && generator != nil:
				bank = generator.PromptBank(r.Context(), req.Style)
			default:
				bank = prompts.NormalizeBank(nil)
			}
			writeJSON(w, store.ApplyConfig(bank))
		default:
			http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/prompts/weight", func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			ID     string  `json:"id"`
			Weight float64 `json:"weight"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := store.SetWeight(req.ID, req.Weight); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/prompts/text", func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := store.SetText(req.ID, req.Text); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/presets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			names, err := presets.List()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]any{"presets": names})
		case http.MethodPost:
			var req struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			if err := presets.Save(req.Name, store.Configs()); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]any{"ok": true, "name": req.Name})
		default:
			http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/presets/load", func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		configs, err := presets.Load(req.Name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, store.ApplyConfig(prompts.NormalizeBank(configs)))
	})

	mux.HandleFunc("/api/presets/delete", func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := presets.Delete(req.Name); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/effects", func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			Active   *bool          `json:"active"`
			Params   *effects.Params `json:"params"`
			Describe string         `json:"describe"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Describe != "" && generator != nil {
			p := generator.EffectParams(r.Context(), req.Describe)
			req.Params = &p
		}
		if req.Params != nil {
			if err := chain.Apply(*req.Params); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if req.Active != nil {
			eng.SetEffectsActive(*req.Active)
		}
		writeJSON(w, map[string]any{"ok": true, "effects": chain.Params(), "fx_active": eng.EffectsActive()})
	})

	mux.HandleFunc("/api/record", func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Enabled {
			rec.Start()
			writeJSON(w, map[string]any{"ok": true, "recording": true})
			return
		}
		path, err := rec.Stop()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "recording": false, "path": path})
	})

	mux.HandleFunc("/api/recording", func(w http.ResponseWriter, r *http.Request) {
		path := rec.LastPath()
		if path == "" {
			http.Error(w, "no recording", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		http.ServeFile(w, r, path)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("promptmix live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}
