// Command demo walks the engine end-to-end with offline collaborators:
// manual stores, an extraction pass against a canned model, recall,
// merge, forget and a Markdown export.
package main

import (
	"context"
	"fmt"
	"log"

	engram "github.com/Protocol-Lattice/engram"
)

func main() {
	ctx := context.Background()

	st := engram.NewInMemoryStore()
	eng, err := engram.NewEngine(st, engram.Options{Namespace: "demo"})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	eng.WithEmbedder(engram.DummyEmbedder{})
	eng.WithLLM(&engram.DummyLLM{
		Response: `[{"content": "User prefers TypeScript", "category": "preference"},
			{"content": "User deploys with Vercel", "category": "skill"}]`,
	})
	eng.WithEvents(engram.Events{
		Stored: func(rec engram.MemoryRecord) {
			fmt.Printf("stored  %-40q surprise=%.2f importance=%.2f\n", rec.Content, rec.Surprise, rec.Importance)
		},
		Rejected: func(info engram.Rejection) {
			fmt.Printf("reject  %-40q reason=%s\n", info.Candidate.Content, info.Reason)
		},
	})

	if _, err := eng.Store(ctx, "User works at a robotics startup", engram.StoreOptions{Category: "fact"}); err != nil {
		log.Fatalf("store: %v", err)
	}

	result, err := eng.Remember(ctx, []engram.Message{
		{Role: "user", Content: "I prefer TypeScript and I ship on Vercel."},
	}, engram.RememberOptions{})
	if err != nil {
		log.Fatalf("remember: %v", err)
	}
	fmt.Printf("remember: %d stored, %d rejected\n", len(result.Stored), len(result.Rejected))

	records, err := eng.Recall(ctx, "what does the user like", engram.RecallOptions{K: 3, Explain: true})
	if err != nil {
		log.Fatalf("recall: %v", err)
	}
	for i, rec := range records {
		fmt.Printf("recall[%d] %q score=%.3f\n", i, rec.Content, rec.Score)
	}

	if _, err := eng.Merge(ctx, engram.MergeOptions{Threshold: 0.6}); err != nil {
		log.Fatalf("merge: %v", err)
	}
	if _, err := eng.Forget(ctx, engram.ForgetOptions{Mode: engram.ForgetGentle}); err != nil {
		log.Fatalf("forget: %v", err)
	}

	md, err := eng.ExportMarkdown(ctx)
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	fmt.Println(md)
}
