// Package main provides a CI-friendly HTTP smoke test for vidtube accounts.
//
// It validates:
//   - multipart registration with an avatar
//   - login returning an access and refresh token
//   - refresh rotation
//   - the rotated-out refresh token being rejected with 403
//   - current-user with a bearer token
//   - logout
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Code       string          `json:"code"`
	Success    bool            `json:"success"`
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Minimal 1x1 PNG.
var avatarPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8000", "Server base URL")
		pass    = flag.String("password", "smoke-password-1", "Password for the throwaway account")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-request timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	api := strings.TrimRight(*baseURL, "/") + "/api/v1/users"
	client := &http.Client{Timeout: *timeout}

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	username := "smoke" + suffix
	email := username + "@example.com"

	mustRegister(client, api, username, email, *pass)
	if *verbose {
		fmt.Printf("registered: %s\n", username)
	}

	first := mustLogin(client, api, username, *pass)
	second := mustRefresh(client, api, first.RefreshToken)
	if second.RefreshToken == first.RefreshToken {
		fatalf("refresh did not rotate the refresh token")
	}

	status, env := call(client, http.MethodPost, api+"/refresh-token", "", jsonBody(map[string]string{"refreshToken": first.RefreshToken}), "application/json")
	if status != http.StatusForbidden {
		fatalf("stale refresh: status=%d want=403 message=%q", status, env.Message)
	}

	status, env = call(client, http.MethodGet, api+"/current-user", second.AccessToken, nil, "")
	if status != http.StatusOK {
		fatalf("current-user: status=%d message=%q", status, env.Message)
	}

	status, env = call(client, http.MethodPost, api+"/logout", second.AccessToken, nil, "")
	if status != http.StatusOK {
		fatalf("logout: status=%d message=%q", status, env.Message)
	}

	status, _ = call(client, http.MethodPost, api+"/refresh-token", "", jsonBody(map[string]string{"refreshToken": second.RefreshToken}), "application/json")
	if status != http.StatusForbidden {
		fatalf("refresh after logout: status=%d want=403", status)
	}

	fmt.Printf("OK: user=%s\n", username)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func mustRegister(client *http.Client, api, username, email, pass string) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"username": username,
		"email":    email,
		"fullName": "Smoke Test",
		"password": pass,
	} {
		if err := mw.WriteField(k, v); err != nil {
			fatalf("form field %s: %v", k, err)
		}
	}
	fw, err := mw.CreateFormFile("avatar", "avatar.png")
	if err != nil {
		fatalf("form file: %v", err)
	}
	if _, err := fw.Write(avatarPNG); err != nil {
		fatalf("form file write: %v", err)
	}
	if err := mw.Close(); err != nil {
		fatalf("form close: %v", err)
	}

	status, env := call(client, http.MethodPost, api+"/register", "", &body, mw.FormDataContentType())
	if status != http.StatusCreated {
		fatalf("register: status=%d code=%q message=%q", status, env.Code, env.Message)
	}
}

func mustLogin(client *http.Client, api, username, pass string) tokens {
	status, env := call(client, http.MethodPost, api+"/login", "", jsonBody(map[string]string{
		"username": username,
		"password": pass,
	}), "application/json")
	if status != http.StatusOK {
		fatalf("login: status=%d message=%q", status, env.Message)
	}
	var t tokens
	if err := json.Unmarshal(env.Data, &t); err != nil {
		fatalf("unmarshal login data: %v", err)
	}
	if t.AccessToken == "" || t.RefreshToken == "" {
		fatalf("login returned empty tokens")
	}
	return t
}

func mustRefresh(client *http.Client, api, refresh string) tokens {
	status, env := call(client, http.MethodPost, api+"/refresh-token", "", jsonBody(map[string]string{"refreshToken": refresh}), "application/json")
	if status != http.StatusOK {
		fatalf("refresh: status=%d message=%q", status, env.Message)
	}
	var t tokens
	if err := json.Unmarshal(env.Data, &t); err != nil {
		fatalf("unmarshal refresh data: %v", err)
	}
	if t.AccessToken == "" || t.RefreshToken == "" {
		fatalf("refresh returned empty tokens")
	}
	return t
}

func call(client *http.Client, method, target, bearer string, body io.Reader, contentType string) (int, envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		fatalf("build %s %s: %v", method, target, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("read %s %s: %v", method, target, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			fatalf("decode %s %s: %v (body=%q)", method, target, err, raw)
		}
	}
	return resp.StatusCode, env
}

func jsonBody(v any) io.Reader {
	b, err := json.Marshal(v)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
