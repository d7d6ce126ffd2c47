package main

import (
	"fmt"

	// Import all procpool dependencies to measure binary size
	_ "github.com/gin-gonic/gin"
	_ "github.com/prometheus/client_golang/prometheus"
	_ "github.com/rs/zerolog"
	_ "github.com/spf13/cobra"
	_ "github.com/spf13/viper"
	_ "go.etcd.io/bbolt"
)

func main() {
	fmt.Println("Procpool Binary Size POC")
	fmt.Println("This minimal program imports all major procpool dependencies.")
	fmt.Println("Build and check the binary size with: go build -ldflags '-s -w'")
}
