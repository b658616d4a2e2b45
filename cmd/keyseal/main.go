// Command keyseal encrypts an exchange API key into the file format read by
// exchange.encrypted_key_path.
//
// The password is taken from CRUDEBOT_EXCHANGE_KEY_PASSWORD so it never appears
// in shell history.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alanyoungcy/crudebot/internal/crypto"
)

func main() {
	out := flag.String("out", "exchange_key.json", "path of the encrypted key file to write")
	flag.Parse()

	password := os.Getenv("CRUDEBOT_EXCHANGE_KEY_PASSWORD")
	if password == "" {
		fatal("CRUDEBOT_EXCHANGE_KEY_PASSWORD must be set")
	}

	fmt.Fprint(os.Stderr, "api key: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fatal("read api key: %v", err)
	}

	blob, err := crypto.SealAPIKey(strings.TrimSpace(line), password)
	if err != nil {
		fatal("%v", err)
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		fatal("write %s: %v", *out, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *out)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "keyseal: "+format+"\n", args...)
	os.Exit(1)
}
