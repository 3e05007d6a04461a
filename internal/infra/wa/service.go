package wa

import (
	"context"
	"fmt"
	"os"

	"github.com/mdp/qrterminal"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	walog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"
)

type MessageHandler func(ctx context.Context, client *whatsmeow.Client, evt *events.Message)

type Service struct {
	client         *whatsmeow.Client
	dbBasePath     string
	log            walog.Logger
	messageHandler MessageHandler
}

func NewService(dbBasePath string, logger walog.Logger) *Service {
	return &Service{
		dbBasePath: dbBasePath,
		log:        logger,
	}
}

func (s *Service) Initialize(ctx context.Context) error {
	// whatsmeow keeps its device store in the same SQLite file as the reports.
	dbAddress := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", s.dbBasePath)
	container, err := sqlstore.New(ctx, "sqlite", dbAddress, s.log.Sub("Database"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to get devices: %w", err)
	}

	var device *store.Device
	if len(devices) > 0 {
		device = devices[0]
	} else {
		device = container.NewDevice()
	}

	s.client = whatsmeow.NewClient(device, s.log.Sub("Client"))
	s.registerEventHandlers()

	return nil
}

func (s *Service) Connect() error {
	if s.client == nil {
		return fmt.Errorf("client not initialized")
	}
	if s.client.IsConnected() {
		return nil
	}
	return s.client.Connect()
}

func (s *Service) Disconnect() {
	if s.client != nil {
		s.client.Disconnect()
	}
}

func (s *Service) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

func (s *Service) registerEventHandlers() {
	s.client.AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			if s.messageHandler != nil {
				go s.messageHandler(context.Background(), s.client, v)
			}
		case *events.Connected:
			s.log.Infof("Connected to WhatsApp")
		case *events.Disconnected:
			s.log.Warnf("Disconnected from WhatsApp")
		}
	})
}

func (s *Service) GetClient() *whatsmeow.Client {
	return s.client
}

func (s *Service) IsLoggedIn() bool {
	return s.client.Store.ID != nil
}

// SendText posts a plain message to chat, e.g. a group JID from config.
func (s *Service) SendText(ctx context.Context, chat types.JID, text string) error {
	if s.client == nil {
		return fmt.Errorf("client not initialized")
	}
	_, err := s.client.SendMessage(ctx, chat, &waE2E.Message{Conversation: &text})
	return err
}

// SendTextTo is SendText with a JID string such as "1203630@g.us".
func (s *Service) SendTextTo(ctx context.Context, jid, text string) error {
	chat, err := types.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("invalid chat %q: %w", jid, err)
	}
	return s.SendText(ctx, chat, text)
}

func (s *Service) Pair(ctx context.Context, phone string) (string, error) {
	if s.IsLoggedIn() {
		return "", fmt.Errorf("already logged in")
	}
	if !s.client.IsConnected() {
		return "", fmt.Errorf("client not connected")
	}
	return s.client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
}

func (s *Service) PrintQR(ctx context.Context) {
	if s.client.Store.ID != nil {
		return
	}
	qrChan, _ := s.client.GetQRChannel(ctx)
	if err := s.client.Connect(); err != nil {
		s.log.Errorf("Failed to connect for QR: %v", err)
		return
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			fmt.Println("QR Code:", evt.Code)
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		} else {
			s.log.Infof("Login event: %s", evt.Event)
		}
	}
}
