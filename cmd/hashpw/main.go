// hashpw prints the bcrypt hash of a password for use as
// OPERATOR_PASSWORD_HASH. The cost comes from BCRYPT_COST when set.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/fieldserve/checkout-portal/internal/utils"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatal("usage: hashpw <password>")
	}
	cost := bcrypt.DefaultCost
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid BCRYPT_COST: %q", v)
		}
		cost = n
	}
	hash, err := utils.HashPassword(os.Args[1], cost)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
