package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Smaller keys are refused by crypto/rsa anyway
const MinKeyBits = 2048

// Read PEM encoded key pair from files
// Private key path may be empty: verify only codec will be used then
func LoadKeys(privatePath string, publicPath string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	var privateKey *rsa.PrivateKey

	if privatePath != "" {
		data, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, nil, fmt.Errorf("can't read private key. Err: %w", err)
		}
		privateKey, err = jwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid private key %s. Err: %w", privatePath, err)
		}
	}

	data, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, nil, fmt.Errorf("can't read public key. Err: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid public key %s. Err: %w", publicPath, err)
	}

	return privateKey, publicKey, nil
}

// Generate RSA key pair, PEM encoded: PKCS #8 private key and PKIX public key
func GenerateKeys(bits int) (privatePEM []byte, publicPEM []byte, err error) {
	if bits < MinKeyBits {
		return nil, nil, fmt.Errorf("key size %d is too small, minimum is %d", bits, MinKeyBits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}
