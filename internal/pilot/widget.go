package pilot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sensorvision/pilot/pkg/llm"
	"github.com/sensorvision/pilot/pkg/models"
)

const (
	defaultWidgetWidth  = 6
	defaultWidgetHeight = 4
)

const widgetSystemPromptHeader = `You are a dashboard configuration assistant for an IoT monitoring platform.
Help the user create dashboard widgets for their devices and sensor variables.

Supported widget types: LINE_CHART, GAUGE, METRIC_CARD, BAR_CHART, AREA_CHART, PIE_CHART, INDICATOR, TABLE, MAP.

Respond with a single JSON object and nothing else, in one of these forms:
{"type":"suggestion","widget":{"name":"...","type":"LINE_CHART","deviceId":"...","deviceName":"...","variableName":"...","width":6,"height":4,"config":{}},"message":"..."}
{"type":"clarification","message":"..."}
{"type":"error","message":"..."}

Use "suggestion" only when you know the device, variable, and widget type.
Use "clarification" to ask for missing details. Only reference devices and
variables from the inventory below.`

// assistantReply is the JSON protocol the widget assistant prompt demands.
type assistantReply struct {
	Type    string            `json:"type"`
	Widget  *WidgetSuggestion `json:"widget,omitempty"`
	Message string            `json:"message"`
}

// AssistantDevice is one inventory entry shown to the assistant and to the
// dashboard frontend.
type AssistantDevice struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Variables []string `json:"variables"`
}

// Chat runs one turn of a widget assistant conversation. An empty
// conversation ID starts a new conversation.
func (s *Service) Chat(ctx context.Context, orgID, userID string, req *ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, newValidationError("message must not be empty")
	}
	if err := s.sanitizer.Validate(req.Message, "message", s.cfg.MaxChatMessageLength); err != nil {
		return nil, err
	}
	message := s.sanitizer.Sanitize(req.Message, "message")

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = s.conversations.Create(orgID)
	}

	history, err := s.conversations.History(conversationID, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.conversations.Append(conversationID, orgID, llm.Message{Role: llm.RoleUser, Content: message}); err != nil {
		return nil, err
	}

	inventory, err := s.assistantInventory(ctx, orgID)
	if err != nil {
		s.logger.Error("failed to load device inventory",
			zap.String("org_id", orgID), zap.Error(err))
		return &ChatResult{
			ConversationID: conversationID,
			Message:        "An error occurred while loading your devices",
		}, nil
	}

	resp := s.router.Complete(ctx, &llm.Request{
		Provider:    req.Provider,
		Feature:     llm.FeatureWidgetAssistant,
		System:      s.widgetSystemPrompt(inventory),
		UserMessage: message,
		History:     history,
	}, orgID, userID)

	result := &ChatResult{
		ConversationID: conversationID,
		Provider:       string(resp.Provider),
		ModelID:        resp.Model,
		TokensUsed:     resp.TotalTokens,
		LatencyMs:      resp.LatencyMs,
	}
	if !resp.Success {
		result.Message = "An error occurred while talking to the assistant"
		return result, nil
	}

	s.interpretAssistantReply(ctx, orgID, conversationID, resp.Content, inventory, result)

	if err := s.conversations.Append(conversationID, orgID, llm.Message{Role: llm.RoleAssistant, Content: resp.Content}); err != nil {
		s.logger.Warn("could not record assistant turn",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return result, nil
}

// interpretAssistantReply applies the JSON protocol to the raw model
// output. Non-JSON output is passed through as a plain reply; malformed
// suggestions degrade to clarifications.
func (s *Service) interpretAssistantReply(ctx context.Context, orgID, conversationID, content string, inventory []AssistantDevice, result *ChatResult) {
	var reply assistantReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &reply); err != nil {
		result.Message = content
		return
	}

	switch reply.Type {
	case "suggestion":
		if reply.Widget == nil {
			result.Message = reply.Message
			result.NeedsClarification = true
			return
		}
		if !ValidWidgetType(reply.Widget.Type) {
			result.NeedsClarification = true
			result.Message = fmt.Sprintf(
				"I suggested an unsupported widget type %q. Supported types are: LINE_CHART, GAUGE, METRIC_CARD, BAR_CHART, AREA_CHART, PIE_CHART, INDICATOR, TABLE, MAP. Could you pick one?",
				reply.Widget.Type)
			return
		}
		if !deviceInInventory(inventory, reply.Widget.DeviceID) {
			result.NeedsClarification = true
			result.Message = "I could not match that device to one of yours. Which device should the widget show?"
			return
		}
		if reply.Widget.Width <= 0 {
			reply.Widget.Width = defaultWidgetWidth
		}
		if reply.Widget.Height <= 0 {
			reply.Widget.Height = defaultWidgetHeight
		}
		if err := s.conversations.SetPending(conversationID, orgID, reply.Widget); err != nil {
			s.logger.Warn("could not cache pending suggestion",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
		result.Suggestion = reply.Widget
		result.Message = reply.Message
		if result.Message == "" {
			result.Message = fmt.Sprintf("I suggest a %s named %q. Confirm to add it to your dashboard.",
				reply.Widget.Type, reply.Widget.Name)
		}

	case "clarification":
		result.NeedsClarification = true
		result.Message = reply.Message

	case "error":
		result.Message = reply.Message

	default:
		result.Message = content
	}
}

// ConfirmSuggestion materializes the conversation's pending suggestion as
// a dashboard widget. Device ownership is re-verified at confirmation time.
func (s *Service) ConfirmSuggestion(ctx context.Context, orgID, conversationID string) (*ConfirmResult, error) {
	sug, err := s.conversations.TakePending(conversationID, orgID)
	if err != nil {
		return nil, err
	}
	if sug == nil {
		return &ConfirmResult{Created: false, Message: "There is no pending widget suggestion to confirm"}, nil
	}

	if _, err := s.resolveDevice(ctx, orgID, sug.DeviceID); err != nil {
		return nil, err
	}

	widgetID, err := s.src.Widgets.CreateWidget(ctx, orgID, WidgetConfig{
		Name:         sug.Name,
		Type:         sug.Type,
		DeviceID:     sug.DeviceID,
		VariableName: sug.VariableName,
		Width:        sug.Width,
		Height:       sug.Height,
		Config:       sug.Config,
	})
	if err != nil {
		s.logger.Error("widget creation failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return &ConfirmResult{Created: false, Message: "An error occurred while creating the widget"}, nil
	}

	return &ConfirmResult{
		Created:  true,
		WidgetID: widgetID,
		Message:  fmt.Sprintf("Widget %q added to your dashboard", sug.Name),
	}, nil
}

// CancelSuggestion discards the conversation's pending suggestion.
func (s *Service) CancelSuggestion(orgID, conversationID string) (*ConfirmResult, error) {
	sug, err := s.conversations.TakePending(conversationID, orgID)
	if err != nil {
		return nil, err
	}
	if sug == nil {
		return &ConfirmResult{Created: false, Message: "There is no pending widget suggestion to cancel"}, nil
	}
	return &ConfirmResult{Created: false, Message: "Suggestion discarded"}, nil
}

// AssistantContext returns the device and variable inventory the assistant
// works from, for display alongside the chat.
func (s *Service) AssistantContext(ctx context.Context, orgID string) ([]AssistantDevice, error) {
	return s.assistantInventory(ctx, orgID)
}

func (s *Service) assistantInventory(ctx context.Context, orgID string) ([]AssistantDevice, error) {
	var devices []models.Device
	var variables []models.Variable
	err := s.pool.Run(ctx, func() error {
		var err error
		devices, err = s.src.Devices.DevicesByOrg(ctx, orgID, s.cfg.MaxDevicesForQuery)
		if err != nil || len(devices) == 0 {
			return err
		}
		ids := make([]string, len(devices))
		for i, d := range devices {
			ids[i] = d.ID
		}
		variables, err = s.src.Variables.VariablesByDeviceIDs(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	byDevice := make(map[string][]string)
	for _, v := range variables {
		if len(byDevice[v.DeviceID]) >= s.cfg.MaxVariablesPerDevice {
			continue
		}
		byDevice[v.DeviceID] = append(byDevice[v.DeviceID], v.Name)
	}

	out := make([]AssistantDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, AssistantDevice{
			ID:        d.ID,
			Name:      d.Name,
			Type:      string(d.DeviceType),
			Variables: byDevice[d.ID],
		})
	}
	return out, nil
}

func (s *Service) widgetSystemPrompt(inventory []AssistantDevice) string {
	var b strings.Builder
	b.WriteString(widgetSystemPromptHeader)
	b.WriteString("\n\nDevice inventory:\n")
	if len(inventory) == 0 {
		b.WriteString("(no devices registered)\n")
	}
	for _, d := range inventory {
		fmt.Fprintf(&b, "- %s (id %s, type %s): %s\n", d.Name, d.ID, d.Type, strings.Join(d.Variables, ", "))
	}
	return b.String()
}

func deviceInInventory(inventory []AssistantDevice, deviceID string) bool {
	for _, d := range inventory {
		if d.ID == deviceID {
			return true
		}
	}
	return false
}
