package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fardannozami/parking-reporter/internal/app/feed"
	"github.com/fardannozami/parking-reporter/internal/app/leaderboard"
	"github.com/fardannozami/parking-reporter/internal/app/upload"
	"github.com/fardannozami/parking-reporter/internal/app/usecase"
	"github.com/fardannozami/parking-reporter/internal/config"
	"github.com/fardannozami/parking-reporter/internal/domain"
	"github.com/fardannozami/parking-reporter/internal/infra/geocode"
	"github.com/fardannozami/parking-reporter/internal/infra/ocr"
	"github.com/fardannozami/parking-reporter/internal/infra/realtime"
	"github.com/fardannozami/parking-reporter/internal/infra/sqlite"
	"github.com/fardannozami/parking-reporter/internal/infra/storage"
	"github.com/fardannozami/parking-reporter/internal/infra/wa"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	walog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Logger
	logger := walog.Stdout("Bot", "INFO", true)

	// 3. Database & Repositories
	// Enable WAL mode and busy timeout to avoid "database is locked" errors
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.SQLitePath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := sqlite.NewReportRepository(db)
	if err := repo.InitTable(ctx); err != nil {
		log.Fatalf("Failed to init tables: %v", err)
	}

	// 4. Change stream
	// Writes go through the notifier so every insert/delete reaches the hub.
	hub := realtime.NewHub(realtime.DefaultBuffer, logger.Sub("Hub"))
	defer hub.Close()
	reports := realtime.NewNotifyingRepository(repo, hub)

	var changes domain.ChangeFeed = hub
	if cfg.RealtimeURL != "" {
		log.Println("Following remote change stream:", cfg.RealtimeURL)
		changes = realtime.NewDialer(cfg.RealtimeURL, logger.Sub("Dialer"))
	}

	// 5. Collaborators
	var photos domain.PhotoStore
	if cfg.CloudinaryURL != "" {
		cld, err := storage.NewCloudinaryStore(cfg.CloudinaryURL, cfg.CloudinaryFolder, logger.Sub("Storage"))
		if err != nil {
			log.Fatalf("Failed to init Cloudinary: %v", err)
		}
		photos = cld
	} else {
		log.Println("CLOUDINARY_URL not set. Photo commands are disabled.")
	}

	var recognizer domain.TextRecognizer
	if cfg.OCRAPIKey != "" {
		recognizer = ocr.NewClient(cfg.OCRAPIURL, cfg.OCRAPIKey, cfg.OCRTimeout)
	} else {
		log.Println("OCR_API_KEY not set. Plates will not be read.")
	}

	geocoder := geocode.NewNominatim(cfg.GeocoderURL, cfg.GeocoderUserAgent, 10*time.Second)
	locations := wa.NewLocationBook(cfg.LocationTTL)

	// 6. WhatsApp Service
	waService := wa.NewService(cfg.SQLitePath, logger)

	// 7. Feed & Leaderboard views
	session := feed.NewSession(changes, repo, logger.Sub("Feed"))
	announce := usecase.NewAnnounceReportUsecase(geocoder)
	if cfg.FeedAnnounce && cfg.GroupID != "" {
		session.Reconciler().OnInsert(func(r domain.Report) {
			go func() {
				sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				if err := waService.SendTextTo(sendCtx, cfg.GroupID, announce.Execute(sendCtx, r)); err != nil {
					log.Printf("Failed to announce report %s: %v", r.ID, err)
				}
			}()
		})
	}
	if err := session.Open(ctx); err != nil {
		log.Fatalf("Failed to open feed: %v", err)
	}
	defer session.Close()

	board := leaderboard.NewView(repo, cfg.LeaderboardRefresh, logger.Sub("Leaderboard"))
	go func() {
		if err := board.Run(ctx, changes); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Leaderboard stopped: %v", err)
		}
	}()

	// 8. Use Cases
	handlers := usecase.Handlers{
		Delete:      usecase.NewDeleteReportUsecase(reports, photos, session.Store(), logger.Sub("Delete")),
		Leaderboard: usecase.NewGetLeaderboardUsecase(board),
		Ranking:     usecase.NewGetRankingUsecase(board),
		Feed:        usecase.NewListFeedUsecase(session.Store(), geocoder, cfg.FeedPageSize),
		Profiles:    repo,
	}
	if photos != nil {
		uploader := upload.NewClient(photos)
		handlers.Capture = usecase.NewCaptureReportUsecase(reports, uploader, recognizer, logger.Sub("Capture"))
		handlers.ProfilePhoto = usecase.NewUpdateProfilePhotoUsecase(uploader, repo)
	}
	handleMessageUC := usecase.NewHandleMessageUsecase(handlers, logger.Sub("Handler"))

	// 9. HTTP: health + realtime stream for other instances
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           realtime.NewRouter(realtime.NewHandler(hub, logger.Sub("Realtime"))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Println("HTTP listening on", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server stopped: %v", err)
		}
	}()

	// 10. Register Message Handler
	waService.SetMessageHandler(func(ctx context.Context, client *whatsmeow.Client, evt *events.Message) {
		if cfg.GroupID != "" && evt.Info.Chat.String() != cfg.GroupID {
			return
		}

		// Ignore messages from self
		if evt.Info.IsFromMe {
			return
		}

		// Get sender info - resolve LID to phone number for consistent user tracking
		senderJID := evt.Info.Sender
		var userID string
		if senderJID.Server == types.HiddenUserServer || senderJID.Server == types.DefaultUserServer && len(senderJID.User) > 15 {
			userID = repo.ResolveLIDToPhone(ctx, senderJID.User)
		} else {
			userID = senderJID.User
		}

		pushName := evt.Info.PushName
		if pushName == "" {
			pushName = "Unknown"
		}

		// A shared location is remembered for the sender's next #lapor.
		if locations.RecordMessage(userID, evt.Message) {
			logger.Debugf("Location recorded for %s", userID)
			return
		}

		msg := usecase.Message{
			UserID:  userID,
			Name:    pushName,
			Locator: locations.Locator(userID),
		}
		switch {
		case evt.Message.GetConversation() != "":
			msg.Text = evt.Message.GetConversation()
		case evt.Message.GetExtendedTextMessage().GetText() != "":
			msg.Text = evt.Message.GetExtendedTextMessage().GetText()
		case evt.Message.GetImageMessage() != nil:
			img := evt.Message.GetImageMessage()
			msg.Text = img.GetCaption()
			msg.Camera = wa.NewImageCamera(client, img)
		}
		if msg.Text == "" {
			return
		}
		msg.OnStage = func(s usecase.Stage) {
			logger.Debugf("Capture %s: %s", userID, s)
		}

		logger.Infof("Message from %s (%s): %s", pushName, userID, msg.Text)

		response, err := handleMessageUC.Execute(ctx, msg)
		if err != nil {
			logger.Errorf("Error handling message: %v", err)
			return
		}
		if response == "" {
			return
		}

		// Apply reply delay to appear more human-like
		delayMs := cfg.ReplyDelayMinMs
		if cfg.ReplyDelayMaxMs > cfg.ReplyDelayMinMs {
			delayMs = cfg.ReplyDelayMinMs + rand.Intn(cfg.ReplyDelayMaxMs-cfg.ReplyDelayMinMs+1)
		}
		if delayMs > 0 {
			if cfg.ShowTyping {
				_ = client.SendChatPresence(ctx, evt.Info.Chat, types.ChatPresenceComposing, types.ChatPresenceMediaText)
			}
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
			if cfg.ShowTyping {
				_ = client.SendChatPresence(ctx, evt.Info.Chat, types.ChatPresencePaused, types.ChatPresenceMediaText)
			}
		}

		if err := waService.SendText(ctx, evt.Info.Chat, response); err != nil {
			logger.Errorf("Failed to send response: %v", err)
		}
	})

	// 11. Initialize Client (DB, Device, etc) - DO NOT CONNECT YET
	if err := waService.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize WhatsApp service: %v", err)
	}

	// 12. Connect / Login Logic
	if !waService.IsLoggedIn() {
		if cfg.BotPhone != "" {
			if err := waService.Connect(); err != nil {
				log.Fatalf("Failed to connect for pairing: %v", err)
			}

			log.Println("Not logged in. Attempting to pair with phone:", cfg.BotPhone)
			code, err := waService.Pair(ctx, cfg.BotPhone)
			if err != nil {
				log.Printf("Failed to generate pair code: %v", err)
			} else {
				log.Println("==================================================")
				log.Printf("PAIR CODE: %s", code)
				log.Println("==================================================")
				log.Println("Please verify this code on your WhatsApp (Linked Devices > Link with phone number)")
			}
		} else {
			log.Println("Not logged in. BOT_PHONE not set. Printing QR...")
			// PrintQR handles GetQRChannel AND Connect() internally to ensure no race condition
			waService.PrintQR(ctx)
		}
	} else {
		if err := waService.Connect(); err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		log.Println("Client is already logged in.")
	}

	log.Println("Bot is running... Press Ctrl+C to exit.")

	// 13. Wait for OS Signal
	<-ctx.Done()

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	waService.Disconnect()
}
