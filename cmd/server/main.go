package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parcelhop/config"
	"parcelhop/internal/database"
	"parcelhop/internal/router"
	"parcelhop/internal/service"
	"parcelhop/pkg/cloudinary"
	"parcelhop/pkg/payment"
)

func main() {
	cfg := config.Load()
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var deps router.Deps
	if cfg.Cloudinary.CloudName != "" {
		cloud, err := cloudinary.NewClientFromParams(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		if err != nil {
			log.Fatalf("cloudinary: %v", err)
		}
		deps.Cloud = cloud
	} else {
		log.Printf("[upload] hand-off photo uploads disabled: set CLOUDINARY_CLOUD_NAME to enable")
	}
	if cfg.Gateway.Email != "" {
		deps.Payments = payment.NewGatewayProvider(cfg.Gateway.BaseURL, cfg.Gateway.Email, cfg.Gateway.Password, cfg.Gateway.WebhookBaseURL)
	} else {
		if cfg.IsProduction() {
			log.Fatalf("payment gateway credentials are required in production")
		}
		log.Printf("[checkout] using stub payment provider")
		deps.Payments = &payment.StubProvider{}
	}
	if fcm := service.NewFCMService(cfg.Firebase.CredentialsFile); fcm != nil {
		log.Printf("[FCM] Push notifications enabled")
		deps.Push = fcm
	} else {
		log.Printf("[FCM] Push notifications disabled: set FIREBASE_CREDENTIALS_FILE to enable")
	}
	if cfg.Payment.WebhookSecret == "" {
		if cfg.IsProduction() {
			log.Fatalf("PAYMENT_WEBHOOK_SECRET is required in production")
		}
		log.Printf("[webhook] PAYMENT_WEBHOOK_SECRET is empty; webhook signatures are not checked")
	}

	engine := router.Setup(cfg, db, deps)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	fmt.Println("server stopped")
}
