// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command gridiron is the CLI client for the Gridiron football analytics API.
//
// Usage:
//
//	gridiron ask "Should the Lions go for it on 4th and 2 from the 35?"
//	gridiron chat
//	gridiron session <session-id>
//	gridiron teams
//
// The server address comes from GRIDIRON_API_URL (default
// http://localhost:8080).
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	sessionIDFlag    string
	favoriteTeamFlag string
	seasonFlag       int
	jsonOutputFlag   bool
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridiron",
		Short: "CLI client for the Gridiron football analytics API",
	}

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}
	askCmd.Flags().StringVar(&sessionIDFlag, "session", "", "Session id for conversational context")
	askCmd.Flags().StringVar(&favoriteTeamFlag, "team", "", "Favorite team code used as the default subject")
	askCmd.Flags().IntVar(&seasonFlag, "season", 0, "Preferred season used when none is stated")
	askCmd.Flags().BoolVar(&jsonOutputFlag, "json", false, "Print the raw answer JSON")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive multi-turn session",
		Run:   runChatCommand,
	}
	chatCmd.Flags().StringVar(&sessionIDFlag, "resume", "", "Resume an existing session id")
	chatCmd.Flags().StringVar(&favoriteTeamFlag, "team", "", "Favorite team code used as the default subject")
	chatCmd.Flags().IntVar(&seasonFlag, "season", 0, "Preferred season used when none is stated")

	sessionCmd := &cobra.Command{
		Use:   "session <session-id>",
		Short: "Inspect stored session state",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionCommand,
	}

	teamsCmd := &cobra.Command{
		Use:   "teams",
		Short: "List recognized franchise codes",
		Run:   runTeamsCommand,
	}

	rootCmd.AddCommand(askCmd, chatCmd, sessionCmd, teamsCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// askRequest mirrors the server's POST /v1/football/ask body.
type askRequest struct {
	SessionID       string `json:"session_id,omitempty"`
	Question        string `json:"question"`
	FavoriteTeam    string `json:"favorite_team,omitempty"`
	PreferredSeason int    `json:"preferred_season,omitempty"`
}

type askResponse struct {
	SessionID string `json:"session_id"`
	Pipeline  string `json:"pipeline"`
	Tier      int    `json:"tier"`
	Rendered  string `json:"rendered"`
	Grounded  bool   `json:"grounded"`
}

type routingFailure struct {
	Error        string   `json:"error"`
	Code         string   `json:"code"`
	BestPipeline string   `json:"best_pipeline"`
	MissingSlots []string `json:"missing_slots"`
}

func runAskCommand(_ *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	answer, failure, err := sendAsk(askRequest{
		SessionID:       sessionIDFlag,
		Question:        question,
		FavoriteTeam:    favoriteTeamFlag,
		PreferredSeason: seasonFlag,
	})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if failure != nil {
		printRoutingFailure(failure)
		os.Exit(1)
	}

	if jsonOutputFlag {
		out, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Printf("[%s, tier %d]\n\n%s\n", answer.Pipeline, answer.Tier, answer.Rendered)
}

func runChatCommand(_ *cobra.Command, _ []string) {
	sessionID := sessionIDFlag
	if sessionID != "" {
		fmt.Printf("Resuming session %s\n", sessionID)
	}
	fmt.Println("Type a question, or 'exit' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		answer, failure, err := sendAsk(askRequest{
			SessionID:       sessionID,
			Question:        question,
			FavoriteTeam:    favoriteTeamFlag,
			PreferredSeason: seasonFlag,
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		if failure != nil {
			printRoutingFailure(failure)
			continue
		}

		// The server assigns an id on the first turn; keep it so the rest
		// of the conversation shares context.
		sessionID = answer.SessionID
		favoriteTeamFlag = ""
		seasonFlag = 0

		fmt.Printf("\n%s\n\n", answer.Rendered)
	}

	if sessionID != "" {
		fmt.Printf("Session: %s (resume with 'gridiron chat --resume %s')\n", sessionID, sessionID)
	}
}

func runSessionCommand(_ *cobra.Command, args []string) {
	resp, err := httpClient.Get(baseURL() + "/v1/football/sessions/" + args[0])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Server returned %d: %s", resp.StatusCode, string(body))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}

func runTeamsCommand(_ *cobra.Command, _ []string) {
	resp, err := httpClient.Get(baseURL() + "/v1/football/teams")
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Teams []string `json:"teams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	for _, code := range payload.Teams {
		fmt.Println(code)
	}
}

// sendAsk posts one question. A 422 is not an error: it carries the routing
// failure body naming the slots the server needs.
func sendAsk(req askRequest) (*askResponse, *routingFailure, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, nil, err
	}
	resp, err := httpClient.Post(baseURL()+"/v1/football/ask", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var answer askResponse
		if err := json.Unmarshal(body, &answer); err != nil {
			return nil, nil, fmt.Errorf("decoding answer: %w", err)
		}
		return &answer, nil, nil
	case http.StatusUnprocessableEntity:
		var failure routingFailure
		if err := json.Unmarshal(body, &failure); err != nil {
			return nil, nil, fmt.Errorf("decoding routing failure: %w", err)
		}
		return nil, &failure, nil
	default:
		return nil, nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
}

func printRoutingFailure(failure *routingFailure) {
	fmt.Println("I need more information to answer that.")
	if failure.BestPipeline != "" {
		fmt.Printf("Closest match: %s\n", failure.BestPipeline)
	}
	if len(failure.MissingSlots) > 0 {
		fmt.Printf("Missing: %s\n", strings.Join(failure.MissingSlots, ", "))
	}
}

func baseURL() string {
	if v := os.Getenv("GRIDIRON_API_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:8080"
}
