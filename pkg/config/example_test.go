package config_test

import (
	"fmt"
	"log"
	"os"

	"github.com/ajitpratap0/nebula-bulk/pkg/config"
)

// ExampleNewConfig demonstrates the defaults of a new pipeline configuration.
func ExampleNewConfig() {
	cfg := config.NewConfig("account")

	fmt.Printf("Chunk Size: %d\n", cfg.Reader.ChunkSize)
	fmt.Printf("Delimiter: %q\n", cfg.Reader.Delimiter)
	fmt.Printf("Missing Fields: %s\n", cfg.Reader.MissingFields)

	// Output:
	// Chunk Size: 1048576
	// Delimiter: ","
	// Missing Fields: absent
}

// ExampleConfig_Validate shows how to validate a configuration before using it.
func ExampleConfig_Validate() {
	cfg := config.NewConfig("opportunity")
	cfg.Reader.Delimiter = "\t"
	cfg.Reader.ChunkSize = 4 << 20

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}

// ExampleParse demonstrates YAML parsing with environment variable substitution.
func ExampleParse() {
	os.Setenv("EXAMPLE_BULK_TOKEN", "00Dxx!token")
	defer os.Unsetenv("EXAMPLE_BULK_TOKEN")

	cfg := config.NewConfig("contact")
	err := config.Parse([]byte("http:\n  access_token: ${EXAMPLE_BULK_TOKEN}\n"), cfg)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(cfg.HTTP.AccessToken)
	fmt.Println(cfg.HTTP.HasAccessToken())

	// Output:
	// 00Dxx!token
	// true
}
