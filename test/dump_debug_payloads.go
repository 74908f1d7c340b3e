//go:build ignore

// Manual smoke script: prints every raw provider payload captured for a
// quote id straight from Redis, one block per provider variant.
//
//	REDIS_URL=redis://localhost:6379 go run test/dump_debug_payloads.go <quote-id>
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"hirequote-cloud/store"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <quote-id>", os.Args[0])
	}
	id := os.Args[1]

	ctx := context.Background()
	client, err := store.InitRedis(ctx)
	if err != nil {
		log.Fatalf("init redis: %v", err)
	}
	defer client.Close()

	quotes := store.NewQuoteStore(client)
	debug := store.NewDebugStore(client, quotes)

	payloads, err := debug.List(ctx, id)
	if err != nil {
		log.Fatalf("list payloads for %s: %v", id, err)
	}
	if len(payloads) == 0 {
		fmt.Printf("no debug payloads for %s\n", id)
		return
	}

	variants := make([]string, 0, len(payloads))
	for v := range payloads {
		variants = append(variants, v)
	}
	sort.Strings(variants)

	for _, variant := range variants {
		fmt.Printf("==== %s ====\n", variant)
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, []byte(payloads[variant]), "", "  "); err != nil {
			fmt.Println(payloads[variant])
			continue
		}
		fmt.Println(pretty.String())
	}
}
