package main

import (
	"context"
	"log"

	"github.com/swaptacular/swpt-login/internal/app/bootstrap"
)

func main() {
	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, "configs/default.yaml")
	if err != nil {
		log.Fatalf("bootstrap api runtime: %v", err)
	}
	defer runtime.Close()
	if err := runtime.RunAPI(ctx); err != nil {
		log.Printf("run api: %v", err)
	}
}
