// snap - capture one webcam frame and ask the model about it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/amitthk/local-llm-camera-app/internal/config"
	"github.com/amitthk/local-llm-camera-app/internal/log"
	"github.com/amitthk/local-llm-camera-app/pkg/camera"
	"github.com/amitthk/local-llm-camera-app/pkg/inference"
)

func main() {
	device := flag.Int("device", 0, "camera device index")
	baseURL := flag.String("url", config.DefaultBaseURL, "inference server base URL")
	model := flag.String("model", config.DefaultModel, "model identifier")
	prompt := flag.String("prompt", config.DefaultInstruction, "instruction to send with the frame")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	log.Init("warn")

	client := inference.NewClient(
		inference.WithBaseURL(*baseURL),
		inference.WithModel(*model),
		inference.WithTimeout(*timeout),
	)
	defer client.Close()

	cam := camera.NewManager(camera.OpenCVOpener(*device), log.L())
	defer cam.Release()

	fmt.Print("📷 Capturing... ")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cam.Acquire(ctx); err != nil {
		fmt.Printf("failed: %v\n", err)
		os.Exit(1)
	}

	// Webcams need a few reads before they deliver a decodable frame.
	var frame string
	for i := 0; i < 20; i++ {
		if frame = cam.Snapshot(); frame != "" {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if frame == "" {
		fmt.Println("failed: camera produced no frame")
		os.Exit(1)
	}
	fmt.Println("ok")

	fmt.Print("🧠 Asking model... ")
	reqCtx, reqCancel := context.WithTimeout(context.Background(), *timeout)
	defer reqCancel()
	resp, err := client.Describe(reqCtx, &inference.Request{
		Instruction:  *prompt,
		ImageDataURL: frame,
	})
	if err != nil {
		fmt.Printf("failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")

	fmt.Println()
	fmt.Println(resp.Reply)
}
