package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	secretBoxEnvVar   = "SECRETBOX_MASTER_KEY"
	nonceSizeGCM      = 12     // AES-GCM nonce size recomendado (96 bits)
	requiredKeyLength = 32     // 32 bytes => AES-256
	sep               = "|"    // nonce|ciphertext (ambos en base64)
	prefix            = "enc:" // marca de valor sellado en config
)

var (
	masterKey     []byte
	masterKeyOnce sync.Once
	loadErr       error
	mu            sync.RWMutex
)

// ensureLoaded carga la clave maestra desde SECRETBOX_MASTER_KEY (base64) una sola vez.
func ensureLoaded() error {
	masterKeyOnce.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(secretBoxEnvVar))
		if kb64 == "" {
			loadErr = fmt.Errorf("%s no seteada; genere una clave con: openssl rand -base64 32", secretBoxEnvVar)
			return
		}
		k, err := base64.StdEncoding.DecodeString(kb64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", secretBoxEnvVar, err)
			return
		}
		if len(k) != requiredKeyLength {
			loadErr = fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", secretBoxEnvVar, requiredKeyLength, len(k))
			return
		}
		mu.Lock()
		masterKey = make([]byte, len(k))
		copy(masterKey, k)
		mu.Unlock()
	})
	return loadErr
}

// IsReady expone si la clave está cargada (útil para healthchecks/config print).
func IsReady() bool {
	mu.RLock()
	defer mu.RUnlock()
	return len(masterKey) == requiredKeyLength
}

// IsSealed indica si el valor lleva la marca "enc:".
func IsSealed(v string) bool {
	return strings.HasPrefix(strings.TrimSpace(v), prefix)
}

// Seal cifra plainText y devuelve "enc:" + base64(nonce) + "|" + base64(ciphertext).
// El resultado puede pegarse directamente en config.yaml o en una variable de entorno.
func Seal(plainText string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	ct, err := sealWith(currentKey(), plainText)
	if err != nil {
		return "", err
	}
	return prefix + ct, nil
}

// Unseal abre un valor sellado. Los valores sin la marca "enc:" pasan
// intactos, así la config puede mezclar claros (dev) y sellados (prod).
func Unseal(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	return openWith(currentKey(), strings.TrimPrefix(strings.TrimSpace(v), prefix))
}

// UnsealWithKey abre un valor sellado con una clave explícita
// (base64, hex o raw de 32 bytes). Usado por cmd/enc para inspección.
func UnsealWithKey(key, v string) (string, error) {
	kBytes, err := decodeKey(key)
	if err != nil {
		return "", err
	}
	return openWith(kBytes, strings.TrimPrefix(strings.TrimSpace(v), prefix))
}

func currentKey() []byte {
	mu.RLock()
	defer mu.RUnlock()
	k := make([]byte, len(masterKey))
	copy(k, masterKey)
	return k
}

// decodeKey acepta base64 (std o raw), hex de 64 chars, o raw de 32 bytes.
func decodeKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)

	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(key) == 64 {
		if h, err := hex.DecodeString(key); err == nil && len(h) == requiredKeyLength {
			return h, nil
		}
	}
	if len(key) == requiredKeyLength {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("clave inválida: se requieren %d bytes (base64, hex o raw)", requiredKeyLength)
}

func sealWith(key []byte, plainText string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	ct := aesgcm.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

func openWith(key []byte, cipherText string) (string, error) {
	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", errors.New("formato inválido: esperado base64(nonce)|base64(ciphertext)")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nonce))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// --- Helpers para tests ---

// UnsafeResetForTests borra estado interno. Usar sólo en tests.
func UnsafeResetForTests() {
	mu.Lock()
	masterKey = nil
	mu.Unlock()
	masterKeyOnce = sync.Once{}
	loadErr = nil
}

// UnsafeSetMasterKeyForTests permite setear una clave cruda (32 bytes) en tests.
func UnsafeSetMasterKeyForTests(k []byte) error {
	if len(k) != requiredKeyLength {
		return fmt.Errorf("clave inválida para test: se requieren %d bytes", requiredKeyLength)
	}
	UnsafeResetForTests()
	// Arma el Once: la clave viene de acá, no del entorno.
	masterKeyOnce.Do(func() {})
	mu.Lock()
	masterKey = make([]byte, len(k))
	copy(masterKey, k)
	mu.Unlock()
	return nil
}
