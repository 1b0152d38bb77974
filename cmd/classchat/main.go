package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/apiclient"
	"github.com/noah-isme/sma-classroom-api/internal/chatfeed"
	"github.com/noah-isme/sma-classroom-api/internal/models"
)

const usage = `commands:
  /older          load the previous page
  /lock, /unlock  toggle the class lock (teachers and admins)
  /attach <path>  send a file, optional caption after the path
  /quit           leave
anything else is sent as a message`

func main() {
	baseURL := flag.String("api", "http://localhost:8080/api/v1", "API base URL")
	email := flag.String("email", "", "account email")
	password := flag.String("password", os.Getenv("CLASSCHAT_PASSWORD"), "account password (defaults to $CLASSCHAT_PASSWORD)")
	classID := flag.String("class", "", "class to join; students default to their own class")
	interval := flag.Duration("interval", 4*time.Second, "poll interval")
	pageSize := flag.Int("page", 100, "messages per page")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("email and password are required")
	}

	logr := zap.NewNop()
	if *verbose {
		var err error
		if logr, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("failed to init logger: %v", err)
		}
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(*baseURL, nil, logr)
	login, err := client.Login(ctx, *email, *password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	class := *classID
	if class == "" {
		if login.User.Role != models.RoleStudent {
			log.Fatal("-class is required for teachers and admins")
		}
		profile, err := client.MyProfile(ctx)
		if err != nil {
			log.Fatalf("failed to load profile: %v", err)
		}
		class = profile.ClassID
	}

	feed := chatfeed.New(chatfeed.Session{
		UserID:  login.User.ID,
		Name:    login.User.FullName,
		Role:    login.User.Role,
		ClassID: class,
	}, client.Messages(), client.Settings(), chatfeed.Config{
		PageSize: *pageSize,
		Uploader: client,
		Logger:   logr,
	})
	defer feed.Close()

	fmt.Printf("joined class %s as %s (%s)\n%s\n", class, login.User.FullName, login.User.Role, usage)

	go render(os.Stdout, feed.Events(), logr)

	poller := chatfeed.NewPoller(feed, *interval, logr)
	poller.Start(ctx)
	defer poller.Stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, feed, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

func handleLine(ctx context.Context, feed *chatfeed.Feed, line string) bool {
	var err error
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/older":
		err = feed.LoadOlder(ctx, feed.PageSize())
	case line == "/lock":
		err = feed.SetLock(ctx, true)
	case line == "/unlock":
		err = feed.SetLock(ctx, false)
	case strings.HasPrefix(line, "/attach "):
		err = sendFile(ctx, feed, strings.TrimSpace(strings.TrimPrefix(line, "/attach ")))
	default:
		_, err = feed.Send(ctx, line, nil)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "! %s\n", describe(err))
	}
	return false
}

func sendFile(ctx context.Context, feed *chatfeed.Feed, args string) error {
	path, caption, _ := strings.Cut(args, " ")
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if caption == "" {
		caption = filepath.Base(path)
	}
	_, err = feed.Send(ctx, caption, &chatfeed.Attachment{FileName: filepath.Base(path), Content: f})
	return err
}

func describe(err error) string {
	switch {
	case errors.Is(err, chatfeed.ErrChatLocked):
		return "chat is locked by your teacher"
	case errors.Is(err, chatfeed.ErrNotModerator):
		return "only teachers and admins can lock the chat"
	case errors.Is(err, chatfeed.ErrEmptyMessage):
		return "message is empty"
	default:
		return err.Error()
	}
}

// render prints persisted messages once each, in window order. Background
// refresh failures stay off the terminal and only reach the debug log.
func render(w io.Writer, events <-chan chatfeed.Event, logr *zap.Logger) {
	printed := make(map[string]struct{})
	for ev := range events {
		switch ev.Kind {
		case chatfeed.WindowChanged:
			for _, msg := range ev.Messages {
				if msg.Pending {
					continue
				}
				if _, ok := printed[msg.ID]; ok {
					continue
				}
				printed[msg.ID] = struct{}{}
				fmt.Fprintln(w, formatMessage(msg))
			}
		case chatfeed.LockChanged:
			if ev.Locked {
				fmt.Fprintln(w, "-- chat locked --")
			} else {
				fmt.Fprintln(w, "-- chat unlocked --")
			}
		case chatfeed.Warning:
			logr.Debug("chat refresh failed", zap.Error(ev.Err))
		}
	}
}

func formatMessage(msg models.ChatMessage) string {
	line := fmt.Sprintf("[%s] %s (%s): %s", msg.CreatedAt.Local().Format("Jan 02 15:04"), msg.SenderName, strings.ToLower(string(msg.Role)), msg.Text)
	if msg.AttachmentRef != nil {
		line += fmt.Sprintf(" [attachment %s]", *msg.AttachmentRef)
	}
	return line
}
