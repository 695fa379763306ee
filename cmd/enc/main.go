package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	sec "github.com/snapguard/snapguard/internal/security/secretbox"
)

// Sella un valor para pegarlo en config.yaml o en una env var:
//
//	enc "mi-password-smtp"        -> enc:...
//	enc -d "enc:..."              -> mi-password-smtp
func main() {
	decrypt := flag.Bool("d", false, "abrir un valor enc: en lugar de sellarlo")
	flag.Parse()

	_ = godotenv.Load(".env")
	key := os.Getenv("SECRETBOX_MASTER_KEY")
	if key == "" {
		log.Fatal("SECRETBOX_MASTER_KEY not set")
	}
	if flag.NArg() != 1 {
		log.Fatal("usage: enc [-d] <valor>")
	}
	val := flag.Arg(0)

	if *decrypt {
		plain, err := sec.UnsealWithKey(key, val)
		if err != nil {
			log.Fatalf("unseal: %v", err)
		}
		fmt.Println(plain)
		return
	}

	sealed, err := sec.Seal(val)
	if err != nil {
		log.Fatalf("seal: %v", err)
	}
	fmt.Println(sealed)
}
