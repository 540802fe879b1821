package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/latoulicious/Hibiki/pkg/hibiki"
)

type Config struct {
	DiscordToken string
	Node         hibiki.NodeOptions
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load()
	if err != nil {
		return nil, err
	}

	discordToken := os.Getenv("DISCORD_TOKEN")
	if discordToken == "" {
		return nil, ErrDiscordTokenNotSet
	}

	port, err := strconv.Atoi(envOr("NODE_PORT", "2333"))
	if err != nil {
		return nil, err
	}
	secure, _ := strconv.ParseBool(os.Getenv("NODE_SECURE"))

	return &Config{
		DiscordToken: discordToken,
		Node: hibiki.NodeOptions{
			Name:     envOr("NODE_NAME", "main"),
			Host:     envOr("NODE_HOST", "localhost"),
			Port:     port,
			Password: os.Getenv("NODE_PASSWORD"),
			Secure:   secure,
		},
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var ErrDiscordTokenNotSet = os.ErrInvalid
