package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/smartchef/smartchef/internal/agent"
	"github.com/smartchef/smartchef/internal/ai"
	"github.com/smartchef/smartchef/internal/chat"
	"github.com/smartchef/smartchef/internal/config"
	"github.com/smartchef/smartchef/internal/db"
	"github.com/smartchef/smartchef/internal/imagegen"
	"github.com/smartchef/smartchef/internal/openagents"
	"github.com/smartchef/smartchef/internal/store/rabbitmq"
	"github.com/smartchef/smartchef/internal/store/redisstore"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	var provider ai.Provider
	var err error
	switch cfg.AIProvider {
	case "ollama":
		provider = ai.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel)
	default:
		provider, err = ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			log.Fatalf("openai provider: %v", err)
		}
	}

	oa := openagents.NewClient(cfg.OpenAgentsURL)

	var gen imagegen.Generator
	if cfg.ImageProvider == "leonardo" {
		gen = imagegen.NewLeonardoGenerator(cfg.LeonardoAPIKey)
	} else {
		gen = imagegen.NewGeminiGenerator(cfg.GeminiAPIKey, cfg.GeminiModel)
	}

	var cache agent.RecipeCache
	rds := redisstore.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(context.Background()); err != nil {
		log.Printf("redis unreachable, cache disabled: %v", err)
	} else {
		cache = rds
	}

	// Queued jobs are full-page generations, so the agent carries the image
	// augmenter here unconditionally.
	chef := agent.New(provider, oa, imagegen.NewAugmenter(gen), cache)
	chef.ResultTimeout = cfg.RecipeTimeout

	svc := chat.NewService(chat.NewRepo(gdb), chef, cfg.ChatContextWindowSize)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := svc.RunJob(ctx, m.JobID); err != nil {
					log.Printf("worker=%d job %s failed cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}
				log.Printf("worker=%d job %s done cost=%s", workerID, m.JobID, time.Since(start))

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
