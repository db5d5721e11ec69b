package main

import (
	"encoding/hex"
	"fmt"

	"github.com/eldtechnologies/noffer/internal/crypto"
)

func main() {
	priv, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}
	key, _ := hex.DecodeString(priv)
	pub, err := crypto.PublicKeyHex(key)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Public key (hex):  %s\n", pub)
	fmt.Printf("Private key (hex): %s\n", priv)
	fmt.Println("\nSet NOFFER_PRIVATE_KEY to the private key to keep it across restarts.")
}
