package main

import (
	"Go_Uploader/config"
	"Go_Uploader/utils"
	"flag"
	"fmt"
	"log"
)

// token prints a bearer token for the upload API.
func main() {
	user := flag.String("user", "", "user name the token is issued to")
	id := flag.Uint64("id", 1, "user id")
	flag.Parse()
	if *user == "" {
		log.Fatal("-user is required")
	}

	config.InitConfig()
	token, err := utils.GenerateToken(*id, *user)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}
