// Package main provides a CI-friendly smoke test for the Wisata auth API.
//
// It validates:
//   - register + login set session cookies
//   - authenticated /auth/me read
//   - device listing shows the logged-in device
//   - explicit refresh rotates the session
//   - logout invalidates the cookies
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"wisata/cmd/client"

	"github.com/google/uuid"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "API base URL")
		password = flag.String("password", "smoke-test-password-1", "Password for the throwaway account")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	c, err := client.New(client.Config{BaseURL: *baseURL})
	if err != nil {
		fatalf("client: %v", err)
	}

	email := fmt.Sprintf("smoke-%s@example.com", uuid.NewString()[:8])
	deviceID := client.NewDeviceIdentifier("desktop")

	step := func(name string, fn func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			fatalf("%s: %v", name, err)
		}
		if *verbose {
			fmt.Printf("ok: %s\n", name)
		}
	}

	step("register", func(ctx context.Context) error {
		return postJSON(ctx, c, "/auth/register", map[string]string{
			"name":     "Smoke Test",
			"email":    email,
			"password": *password,
		}, http.StatusCreated)
	})

	step("login", func(ctx context.Context) error {
		return postJSON(ctx, c, "/auth/login", map[string]string{
			"email":             email,
			"password":          *password,
			"device_name":       "smoke runner",
			"device_identifier": deviceID,
			"device_type":       "desktop",
		}, http.StatusOK)
	})

	step("me", func(ctx context.Context) error {
		var data struct {
			User struct {
				Email string `json:"email"`
			} `json:"user"`
		}
		if err := getJSON(ctx, c, "/auth/me", &data); err != nil {
			return err
		}
		if data.User.Email != email {
			return fmt.Errorf("unexpected email %q", data.User.Email)
		}
		return nil
	})

	step("device list", func(ctx context.Context) error {
		var data struct {
			Devices []struct {
				Identifier string `json:"identifier"`
			} `json:"devices"`
		}
		if err := getJSON(ctx, c, "/device/list", &data); err != nil {
			return err
		}
		for _, d := range data.Devices {
			if d.Identifier == deviceID {
				return nil
			}
		}
		return fmt.Errorf("device %q not listed", deviceID)
	})

	step("refresh", func(ctx context.Context) error {
		return postJSON(ctx, c, "/auth/refresh", nil, http.StatusOK)
	})

	step("me after refresh", func(ctx context.Context) error {
		var data struct{}
		return getJSON(ctx, c, "/auth/me", &data)
	})

	step("logout", func(ctx context.Context) error {
		return postJSON(ctx, c, "/auth/logout", nil, http.StatusOK)
	})

	step("verify after logout", func(ctx context.Context) error {
		resp, err := c.Get(ctx, "/auth/verify")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		var env struct {
			Data struct {
				Authenticated bool `json:"authenticated"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return err
		}
		if env.Data.Authenticated {
			return fmt.Errorf("still authenticated after logout")
		}
		return nil
	})

	fmt.Println("smoke: all steps passed")
}

func postJSON(ctx context.Context, c *client.Client, path string, body map[string]string, wantStatus int) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = strings.NewReader(string(b))
	}
	resp, err := c.Post(ctx, path, "application/json", rd)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d (want %d): %s", resp.StatusCode, wantStatus, msg)
	}
	return nil
}

func getJSON(ctx context.Context, c *client.Client, path string, out any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "smoke: "+format+"\n", args...)
	os.Exit(1)
}
