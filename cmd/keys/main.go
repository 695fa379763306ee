package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	var (
		flagEnvFile     = flag.String("env-file", ".env", "ruta a .env")
		cmdGenAdminKey  = flag.Bool("gen-admin-key", false, "genera una ADMIN_API_KEY nueva con su hash bcrypt")
		cmdHashAdminKey = flag.String("hash-admin-key", "", "calcula el hash bcrypt de una API key existente")
		cmdGenSecretbox = flag.Bool("gen-secretbox", false, "genera nueva clave para SECRETBOX_MASTER_KEY")
		cmdGenNodeSec   = flag.Bool("gen-node-secret", false, "genera un NODE_SHARED_SECRET para la autenticación entre nodos")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		_ = godotenv.Load(*flagEnvFile)
	}

	switch {
	case *cmdGenSecretbox:
		generateSecretboxKey()
	case *cmdGenNodeSec:
		generateNodeSecret()
	case *cmdGenAdminKey:
		generateAdminKey()
	case *cmdHashAdminKey != "":
		hashAdminKey(*cmdHashAdminKey)
	default:
		fmt.Println("usage:")
		fmt.Println("  keys -gen-admin-key")
		fmt.Println("  keys -hash-admin-key <clave>")
		fmt.Println("  keys -gen-secretbox")
		fmt.Println("  keys -gen-node-secret")
	}
}

func randomBase64(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		fmt.Printf("❌ Error generating key: %v\n", err)
		os.Exit(1)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func generateSecretboxKey() {
	fmt.Println("🔐 snapguard - Secret Key Generator")
	fmt.Println("Generating 32-byte base64 key for SECRETBOX_MASTER_KEY...")

	encoded := randomBase64(32)
	fmt.Printf("✅ Generated key: %s\n", encoded)
	fmt.Println("\n💡 Add this to your .env file:")
	fmt.Printf("SECRETBOX_MASTER_KEY=%s\n", encoded)
}

func generateNodeSecret() {
	// El secreto HS256 que comparten todos los nodos para /internal/*.
	encoded := randomBase64(32)
	fmt.Println("💡 Add this to the .env of EVERY node (same value everywhere):")
	fmt.Printf("NODE_SHARED_SECRET=%s\n", encoded)
}

func generateAdminKey() {
	key := randomBase64(32)
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("❌ Error hashing key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("💡 Give the key to the operator; put only the hash in the server config:")
	fmt.Printf("ADMIN_API_KEY=%s\n", key)
	fmt.Printf("ADMIN_API_KEY_HASH=%s\n", string(hash))
}

func hashAdminKey(key string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("❌ Error hashing key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ADMIN_API_KEY_HASH=%s\n", string(hash))
}
