package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"whatsapp-admin/internal/database"
	"whatsapp-admin/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type mockGateway struct {
	mu          sync.Mutex
	nextID      string
	sendErr     error
	readErr     error
	sentTexts   []string
	sentToPhone []string
	templates   []string
	readIDs     []string
}

func (m *mockGateway) SendText(ctx context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sentTexts = append(m.sentTexts, body)
	m.sentToPhone = append(m.sentToPhone, to)
	return m.nextID, nil
}

func (m *mockGateway) SendTemplate(ctx context.Context, to, name, languageCode string, parameters []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.templates = append(m.templates, name)
	return m.nextID, nil
}

func (m *mockGateway) MarkAsRead(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readIDs = append(m.readIDs, messageID)
	return m.readErr
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedRoles(db, "guest"))
	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func setupService(t *testing.T) (*WhatsAppService, *mockGateway, *gorm.DB) {
	t.Helper()
	db := setupDB(t)
	gw := &mockGateway{nextID: "wamid.out.1"}
	return NewWhatsAppService(db, gw, testLogger(), "guest"), gw, db
}

func TestGetOrCreateUser(t *testing.T) {
	svc, _, db := setupService(t)

	name := "John Doe"
	user, err := svc.GetOrCreateUser("15550001111", &name)
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	require.NotNil(t, user.Name)
	assert.Equal(t, "John Doe", *user.Name)
	require.NotNil(t, user.LastInteractionAt)

	again, err := svc.GetOrCreateUser("15550001111", nil)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	// Default role assigned on creation only, exactly once.
	count := db.Model(user).Association("Roles").Count()
	assert.Equal(t, int64(1), count)

	var roles []models.Role
	require.NoError(t, db.Model(user).Association("Roles").Find(&roles))
	require.Len(t, roles, 1)
	assert.Equal(t, "guest", roles[0].Name)
}

func TestGetOrCreateActiveConversationIdempotent(t *testing.T) {
	svc, _, _ := setupService(t)

	user, err := svc.GetOrCreateUser("15550001111", nil)
	require.NoError(t, err)

	first, err := svc.GetOrCreateActiveConversation(user)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationStatusActive, first.Status)

	second, err := svc.GetOrCreateActiveConversation(user)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateActiveConversationAfterClose(t *testing.T) {
	svc, _, db := setupService(t)

	user, err := svc.GetOrCreateUser("15550001111", nil)
	require.NoError(t, err)

	first, err := svc.GetOrCreateActiveConversation(user)
	require.NoError(t, err)

	require.NoError(t, db.Model(first).Update("status", models.ConversationStatusClosed).Error)

	second, err := svc.GetOrCreateActiveConversation(user)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.ConversationStatusActive, second.Status)
}

func TestGetOrCreateActiveConversationConcurrent(t *testing.T) {
	svc, _, db := setupService(t)

	user, err := svc.GetOrCreateUser("15550001111", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetOrCreateActiveConversation(user)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, db.Model(&models.Conversation{}).
		Where("whatsapp_user_id = ? AND status = ?", user.ID, models.ConversationStatusActive).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordInboundMessage(t *testing.T) {
	svc, _, db := setupService(t)

	msg := inboundMessage(t, `{"from":"15550001111","id":"wamid.in.1","timestamp":"1700000000","type":"text","text":{"body":"Hello"}}`)
	msg.ProfileName = "John Doe"

	record, err := svc.RecordInboundMessage(msg)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, models.DirectionInbound, record.Direction)
	assert.Equal(t, models.MessageTypeText, record.Type)
	assert.Equal(t, models.MessageStatusSent, record.Status)
	require.NotNil(t, record.Content)
	assert.Equal(t, "Hello", *record.Content)
	require.NotNil(t, record.WhatsappMessageID)
	assert.Equal(t, "wamid.in.1", *record.WhatsappMessageID)
	require.NotNil(t, record.SentAt)
	assert.Equal(t, int64(1700000000), record.SentAt.Unix())

	var user models.WhatsappUser
	require.NoError(t, db.Where("phone_number = ?", "15550001111").First(&user).Error)
	require.NotNil(t, user.Name)
	assert.Equal(t, "John Doe", *user.Name)
	require.NotNil(t, user.LastInteractionAt)

	var conversation models.Conversation
	require.NoError(t, db.First(&conversation, record.ConversationID).Error)
	assert.Equal(t, models.ConversationStatusActive, conversation.Status)
	assert.Equal(t, user.ID, conversation.WhatsappUserID)
	require.NotNil(t, conversation.LastMessageAt)
}

func TestRecordInboundMessageDuplicateProviderID(t *testing.T) {
	svc, _, db := setupService(t)

	raw := `{"from":"15550001111","id":"wamid.in.1","timestamp":"1700000000","type":"text","text":{"body":"Hello"}}`

	_, err := svc.RecordInboundMessage(inboundMessage(t, raw))
	require.NoError(t, err)

	_, err = svc.RecordInboundMessage(inboundMessage(t, raw))
	assert.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Message{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSendTextMessage(t *testing.T) {
	svc, gw, db := setupService(t)

	user, err := svc.GetOrCreateUser("15550001111", nil)
	require.NoError(t, err)

	record, err := svc.SendTextMessage(context.Background(), user, "Hi from support", nil)
	require.NoError(t, err)

	assert.Equal(t, models.DirectionOutbound, record.Direction)
	assert.Equal(t, models.MessageTypeText, record.Type)
	assert.Equal(t, models.MessageStatusSent, record.Status)
	require.NotNil(t, record.WhatsappMessageID)
	assert.Equal(t, "wamid.out.1", *record.WhatsappMessageID)
	require.NotNil(t, record.SentAt)
	assert.Equal(t, []string{"15550001111"}, gw.sentToPhone)

	var conversation models.Conversation
	require.NoError(t, db.First(&conversation, record.ConversationID).Error)
	assert.Equal(t, models.ConversationStatusActive, conversation.Status)
}

func TestSendTextMessageGatewayFailure(t *testing.T) {
	svc, gw, db := setupService(t)
	gw.sendErr = errors.New("api unreachable")

	user, err := svc.GetOrCreateUser("15550001111", nil)
	require.NoError(t, err)

	record, err := svc.SendTextMessage(context.Background(), user, "Hi", nil)
	assert.Error(t, err)
	assert.Nil(t, record)

	// No row is written for a failed send.
	var count int64
	require.NoError(t, db.Model(&models.Message{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSendTextMessageWithoutProviderID(t *testing.T) {
	svc, gw, _ := setupService(t)
	gw.nextID = ""

	user, err := svc.GetOrCreateUser("15550001111", nil)
	require.NoError(t, err)

	record, err := svc.SendTextMessage(context.Background(), user, "Hi", nil)
	require.NoError(t, err)
	assert.Nil(t, record.WhatsappMessageID)
}

func TestSendTemplateMessage(t *testing.T) {
	svc, gw, _ := setupService(t)

	user, err := svc.GetOrCreateUser("15550001111", nil)
	require.NoError(t, err)

	record, err := svc.SendTemplateMessage(context.Background(), user, "order_update", "en_US", []string{"12345"}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.MessageTypeTemplate, record.Type)
	require.NotNil(t, record.Content)
	assert.Equal(t, "Template: order_update", *record.Content)
	assert.JSONEq(t, `{"template_name":"order_update","language_code":"en_US","parameters":["12345"]}`, string(record.Metadata))
	assert.Equal(t, []string{"order_update"}, gw.templates)
}

func outboundMessage(t *testing.T, svc *WhatsAppService, providerID string) *models.Message {
	t.Helper()
	user, err := svc.GetOrCreateUser("15550001111", nil)
	require.NoError(t, err)

	svcGateway := svc.gateway.(*mockGateway)
	svcGateway.nextID = providerID

	record, err := svc.SendTextMessage(context.Background(), user, "tracked", nil)
	require.NoError(t, err)
	return record
}

func TestApplyStatusUpdateUnknownID(t *testing.T) {
	svc, _, db := setupService(t)
	outboundMessage(t, svc, "wamid.known")

	require.NoError(t, svc.ApplyStatusUpdate("wamid.unknown", models.MessageStatusDelivered))

	var message models.Message
	require.NoError(t, db.Where("whatsapp_message_id = ?", "wamid.known").First(&message).Error)
	assert.Equal(t, models.MessageStatusSent, message.Status)
}

func TestApplyStatusUpdateDelivered(t *testing.T) {
	svc, _, db := setupService(t)
	outboundMessage(t, svc, "wamid.d1")

	require.NoError(t, svc.ApplyStatusUpdate("wamid.d1", models.MessageStatusDelivered))

	var message models.Message
	require.NoError(t, db.Where("whatsapp_message_id = ?", "wamid.d1").First(&message).Error)
	assert.Equal(t, models.MessageStatusDelivered, message.Status)
	assert.NotNil(t, message.DeliveredAt)
	assert.Nil(t, message.ReadAt)
}

func TestApplyStatusUpdateReadIdempotent(t *testing.T) {
	svc, _, db := setupService(t)
	outboundMessage(t, svc, "wamid.r1")

	require.NoError(t, svc.ApplyStatusUpdate("wamid.r1", models.MessageStatusRead))

	var message models.Message
	require.NoError(t, db.Where("whatsapp_message_id = ?", "wamid.r1").First(&message).Error)
	assert.Equal(t, models.MessageStatusRead, message.Status)
	require.NotNil(t, message.ReadAt)
	firstReadAt := *message.ReadAt

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, svc.ApplyStatusUpdate("wamid.r1", models.MessageStatusRead))

	require.NoError(t, db.Where("whatsapp_message_id = ?", "wamid.r1").First(&message).Error)
	assert.Equal(t, models.MessageStatusRead, message.Status)
	require.NotNil(t, message.ReadAt)
	assert.Equal(t, firstReadAt.Unix(), message.ReadAt.Unix())
}

func TestApplyStatusUpdateOutOfOrder(t *testing.T) {
	svc, _, db := setupService(t)
	outboundMessage(t, svc, "wamid.o1")

	require.NoError(t, svc.ApplyStatusUpdate("wamid.o1", models.MessageStatusRead))
	// A stale "sent" callback must not overwrite the later "read".
	require.NoError(t, svc.ApplyStatusUpdate("wamid.o1", models.MessageStatusSent))

	var message models.Message
	require.NoError(t, db.Where("whatsapp_message_id = ?", "wamid.o1").First(&message).Error)
	assert.Equal(t, models.MessageStatusRead, message.Status)
}

func TestApplyStatusUpdateFailed(t *testing.T) {
	t.Run("failed from sent", func(t *testing.T) {
		svc, _, db := setupService(t)
		outboundMessage(t, svc, "wamid.f1")

		require.NoError(t, svc.ApplyStatusUpdate("wamid.f1", models.MessageStatusFailed))

		var message models.Message
		require.NoError(t, db.Where("whatsapp_message_id = ?", "wamid.f1").First(&message).Error)
		assert.Equal(t, models.MessageStatusFailed, message.Status)
	})

	t.Run("failed does not override read", func(t *testing.T) {
		svc, _, db := setupService(t)
		outboundMessage(t, svc, "wamid.f2")

		require.NoError(t, svc.ApplyStatusUpdate("wamid.f2", models.MessageStatusRead))
		require.NoError(t, svc.ApplyStatusUpdate("wamid.f2", models.MessageStatusFailed))

		var message models.Message
		require.NoError(t, db.Where("whatsapp_message_id = ?", "wamid.f2").First(&message).Error)
		assert.Equal(t, models.MessageStatusRead, message.Status)
	})
}

func TestApplyStatusUpdateUnknownStatus(t *testing.T) {
	svc, _, db := setupService(t)
	outboundMessage(t, svc, "wamid.u1")

	require.NoError(t, svc.ApplyStatusUpdate("wamid.u1", "warehoused"))

	var message models.Message
	require.NoError(t, db.Where("whatsapp_message_id = ?", "wamid.u1").First(&message).Error)
	assert.Equal(t, models.MessageStatusSent, message.Status)
}

func TestMarkAsReadBestEffort(t *testing.T) {
	svc, gw, _ := setupService(t)
	gw.readErr = errors.New("api down")

	// Must not panic or propagate.
	svc.MarkAsRead(context.Background(), "wamid.in.1")
	assert.Equal(t, []string{"wamid.in.1"}, gw.readIDs)
}
