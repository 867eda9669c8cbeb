// Command keygen writes the RSA key pair used to sign session tokens.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/security"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	privatePath := flag.String("private", cfg.JWT.PrivateKeyPath, "path of the private key PEM")
	publicPath := flag.String("public", cfg.JWT.PublicKeyPath, "path of the public key PEM")
	bits := flag.Int("bits", 2048, "RSA modulus size")
	force := flag.Bool("force", false, "overwrite existing key files")
	flag.Parse()

	if !*force {
		for _, p := range []string{*privatePath, *publicPath} {
			if _, err := os.Stat(p); err == nil {
				log.Fatalf("%s already exists, pass -force to replace it", p)
			}
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, *bits)
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}
	privatePEM, publicPEM, err := security.EncodeKeyPairPEM(key)
	if err != nil {
		log.Fatalf("encode key: %v", err)
	}

	if err := writeFile(*privatePath, privatePEM, 0o600); err != nil {
		log.Fatalf("write private key: %v", err)
	}
	if err := writeFile(*publicPath, publicPEM, 0o644); err != nil {
		log.Fatalf("write public key: %v", err)
	}
	fmt.Printf("wrote %s and %s\n", *privatePath, *publicPath)
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}
