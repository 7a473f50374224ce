package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wiralab/wira/contacts"
	"github.com/wiralab/wira/gateway"
	"github.com/wiralab/wira/orchestrator"
	"github.com/wiralab/wira/pkg/config"
	"github.com/wiralab/wira/pkg/kv"
	"github.com/wiralab/wira/pkg/llm"
	googleprovider "github.com/wiralab/wira/pkg/llm/providers/google"
	groqprovider "github.com/wiralab/wira/pkg/llm/providers/groq"
	"github.com/wiralab/wira/planner"
	"github.com/wiralab/wira/responder"
	"github.com/wiralab/wira/retrieval"
	"github.com/wiralab/wira/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	log.Println("Starting Wira...")

	if *configPath == "" {
		exe, _ := os.Executable()
		*configPath = filepath.Join(filepath.Dir(exe), "config", "config.yaml")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Bot.Timezone)
	if err != nil {
		log.Printf("[WARN] Unknown timezone %q, using local", cfg.Bot.Timezone)
		loc = time.Local
	}

	// 1. SQLite storage
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		log.Fatalf("Create data dir: %v", err)
	}
	store, err := storage.NewWithConfig(cfg.Storage)
	if err != nil {
		log.Fatalf("Storage init failed: %v", err)
	}
	defer store.Close()

	// 2. Badger KV for the retrieval snapshot
	kvStore, err := kv.Open(kv.Options{Dir: cfg.KV.Dir, MemoryMode: cfg.KV.MemoryMode})
	if err != nil {
		log.Fatalf("KV init failed: %v", err)
	}
	defer kvStore.Close()

	// 3. Lexical retrieval index
	index := retrieval.New(cfg.Retrieval, kvStore)

	// 4. Generation providers
	ctx := context.Background()
	var textProvider llm.TextProvider
	if cfg.LLM.GeminiAPIKey != "" {
		p, err := googleprovider.New(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel)
		if err != nil {
			log.Fatalf("Gemini init failed: %v", err)
		}
		textProvider = p
	} else {
		log.Print("[WARN] No GEMINI_API_KEY, replies will use the fallback text")
	}

	var visionProvider llm.VisionProvider
	var transcriber llm.Transcriber
	if cfg.LLM.GroqAPIKey != "" {
		p, err := groqprovider.New(groqprovider.Config{
			APIKey:      cfg.LLM.GroqAPIKey,
			BaseURL:     cfg.LLM.GroqBaseURL,
			VisionModel: cfg.LLM.VisionModel,
			VoiceModel:  cfg.LLM.VoiceModel,
		})
		if err != nil {
			log.Fatalf("Groq init failed: %v", err)
		}
		visionProvider = p
		transcriber = p
	} else {
		log.Print("[WARN] No GROQ_API_KEY, media messages degrade to placeholders")
	}

	// 5. Contacts and whitelist gate
	book, err := contacts.Load(cfg.Contacts.SpecialContactsPath)
	if err != nil {
		log.Fatalf("Contacts load failed: %v", err)
	}
	gate := contacts.NewGate(store)

	// 6. Planner: agenda executor and reminder loop
	executor := planner.NewExecutor(store, cfg.Planner, loc)

	resp := responder.New(cfg.LLM, textProvider, visionProvider, transcriber, index, executor, loc)

	orch := orchestrator.New(orchestrator.Options{
		Config:    cfg,
		Store:     store,
		Contacts:  book,
		Gate:      gate,
		Responder: resp,
		Executor:  executor,
	})
	srv := gateway.NewServer(cfg.Gateway, cfg.Bot, orch)
	orch.SetSender(srv)
	defer orch.Stop()

	reminder := planner.NewReminder(store, cfg.Planner, loc, func(text string) {
		if cfg.Bot.OwnerNumber == "" {
			return
		}
		if err := srv.Send(cfg.Bot.OwnerNumber, cfg.Bot.ReplyHeader+"\n"+text); err != nil {
			log.Printf("[WARN] Reminder delivery: %v", err)
		}
	})
	reminder.Start()
	defer reminder.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("Gateway stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] Shutdown: %v", err)
	}
	log.Println("Wira stopped")
}
