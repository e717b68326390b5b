package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"schoolhub-backend/internal/chat"
	"schoolhub-backend/internal/chatstore"
	"schoolhub-backend/internal/config"
	"schoolhub-backend/internal/database"
	"schoolhub-backend/internal/models"
)

var (
	chatSessionKey string
	chatID         string
)

func init() {
	chatCmd.Flags().StringVar(&chatSessionKey, "session", "default", "key the chat history is stored under")
	chatCmd.Flags().StringVar(&chatID, "chat", "", "resume the chat with this ID")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the AI assistant",
	Long: `Start an interactive chat. Answers stream in as they are written.

Press Ctrl+C while an answer is streaming to stop it; press it again at
the prompt, or type /quit, to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func openChatStore(cfg *config.ClientConfig) (chat.Store, func(), error) {
	if cfg.ChatRedisURL != "" {
		client, err := database.NewRedis(context.Background(), cfg.ChatRedisURL)
		if err != nil {
			return nil, nil, err
		}
		return chatstore.NewRedisStore(client, cfg.ChatTTL), func() { client.Close() }, nil
	}

	db, err := database.OpenSQLite(cfg.ChatStorePath)
	if err != nil {
		return nil, nil, err
	}
	store, err := chatstore.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := config.LoadClient()
	if cfg.Token == "" {
		return fmt.Errorf("SCHOOLHUB_TOKEN is not set; run 'schoolctl token' to mint one")
	}

	store, closeStore, err := openChatStore(cfg)
	if err != nil {
		return fmt.Errorf("open chat store: %w", err)
	}
	defer closeStore()

	ctx := context.Background()
	var existing *models.Chat
	if chatID != "" {
		id, err := uuid.Parse(chatID)
		if err != nil {
			return fmt.Errorf("invalid chat ID: %w", err)
		}
		if existing, err = chat.FindChat(ctx, store, chatSessionKey, id); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	printer := &replyPrinter{out: out}
	session := chat.NewSession(existing, chat.Config{
		Endpoint:    strings.TrimRight(cfg.APIURL, "/") + "/api/v1/chat/stream",
		Token:       cfg.Token,
		IdleTimeout: cfg.IdleTimeout,
		Store:       store,
		SessionKey:  chatSessionKey,
		OnUpdate:    printer.update,
	})

	if existing != nil {
		for _, m := range existing.Messages {
			fmt.Fprintf(out, "%s> %s\n", m.Role, m.Content)
		}
	}
	infoColor.Fprintf(out, "ℹ chat %s (session %q)\n", session.ChatID(), chatSessionKey)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	for {
		boldColor.Fprint(out, "you> ")
		select {
		case <-interrupts:
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			printer.reset()
			if !session.SendMessage(ctx, line) {
				continue
			}
			fmt.Fprint(out, "assistant> ")
			waitForTurn(session, interrupts)
			fmt.Fprintln(out)
		}
	}
}

// waitForTurn blocks until the turn ends. An interrupt stops the generation
// instead of quitting.
func waitForTurn(session *chat.Session, interrupts <-chan os.Signal) {
	done := make(chan struct{})
	go func() {
		session.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupts:
			session.StopGeneration()
		}
	}
}
