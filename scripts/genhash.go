// One-off: go run scripts/genhash.go [-cost N] [password]
// Prints a bcrypt hash for seeding fixture accounts. Reads the password from
// stdin when no argument is given, so it never lands in shell history.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	flag.Parse()

	password := flag.Arg(0)
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatal("genhash: read password: ", err)
		}
		password = strings.TrimSpace(line)
	}
	if password == "" {
		log.Fatal("genhash: empty password")
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), *cost)
	if err != nil {
		log.Fatal("genhash: ", err)
	}
	fmt.Println(string(h))
}
