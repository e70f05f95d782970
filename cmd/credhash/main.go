// Command credhash prints the bcrypt hash of a password, for use as the
// AUTH_PASSWORD_HASH configuration value.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gfranzoni/accountledger/internal/auth"
)

func main() {
	password, err := readPassword()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read password: %v\n", err)
		os.Exit(1)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func readPassword() (string, error) {
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		return os.Args[1], nil
	}
	info, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return "", fmt.Errorf("provide password as arg or stdin")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && len(line) == 0 {
		return "", err
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	return password, nil
}
