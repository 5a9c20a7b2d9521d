package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"assetvault/pkg/app"
	"assetvault/pkg/config"
)

// av-agent 是对等协作代理：常驻后台，把本机已有的资产
// 应答给同项目的其他协作者。没有它，邻居只能走源站。
func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.av/config.yaml)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	// 2. Init Core Application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.NewApp(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to initialize app: %v", err)
	}
	fmt.Println("✅ AssetVault core initialized.")

	if application.PeerHub == nil {
		log.Fatal("❌ Peer channel not available (set peer.enabled=true and check redis)")
	}

	// 3. Start Responder (Async)
	go func() {
		fmt.Printf("🚀 Peer agent serving project %s...\n", application.Project)
		if err := application.PeerHub.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("❌ Responder failed: %v", err)
		}
	}()

	// 4. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n⚠️  Shutting down agent...")
	cancel()
	if err := application.Close(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	fmt.Println("👋 Agent stopped.")
}
