package transport

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-notifications/internal/notification/dispatch"
)

type mockSES struct {
	SendEmailFunc func(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
	inputs        []*ses.SendEmailInput
}

func (m *mockSES) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	m.inputs = append(m.inputs, input)
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, input)
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

type mockSNS struct {
	PublishFunc func(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
	inputs      []*sns.PublishInput
}

func (m *mockSNS) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	m.inputs = append(m.inputs, input)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, input)
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-msg-1")}, nil
}

func TestEmailSender_Send(t *testing.T) {
	mock := &mockSES{}
	sender := NewEmailSender(mock, "noreply@bookings.example.com")

	id, err := sender.Send(context.Background(), dispatch.Message{
		Channel:  dispatch.ChannelEmail,
		To:       "priya@example.com",
		Subject:  "Your booking",
		HTMLBody: "<p>Hi</p>",
		TextBody: "Hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", id)

	require.Len(t, mock.inputs, 1)
	input := mock.inputs[0]
	assert.Equal(t, "noreply@bookings.example.com", aws.ToString(input.Source))
	assert.Equal(t, []string{"priya@example.com"}, input.Destination.ToAddresses)
	assert.Equal(t, "Your booking", aws.ToString(input.Message.Subject.Data))
	assert.Equal(t, "<p>Hi</p>", aws.ToString(input.Message.Body.Html.Data))
	assert.Equal(t, "Hi", aws.ToString(input.Message.Body.Text.Data))
}

func TestEmailSender_SendFailure(t *testing.T) {
	mock := &mockSES{
		SendEmailFunc: func(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
			return nil, fmt.Errorf("MessageRejected")
		},
	}
	sender := NewEmailSender(mock, "noreply@bookings.example.com")

	_, err := sender.Send(context.Background(), dispatch.Message{To: "priya@example.com"})
	assert.Error(t, err)
}

func TestSMSSender_Send(t *testing.T) {
	mock := &mockSNS{}
	sender := NewSMSSender(mock, "BOOKINGS")

	id, err := sender.Send(context.Background(), dispatch.Message{
		Channel:  dispatch.ChannelSMS,
		To:       "+4915551234",
		TextBody: "Cancelled: Court 3 at 18:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "sns-msg-1", id)

	require.Len(t, mock.inputs, 1)
	input := mock.inputs[0]
	assert.Equal(t, "+4915551234", aws.ToString(input.PhoneNumber))
	assert.Equal(t, "Cancelled: Court 3 at 18:00", aws.ToString(input.Message))
	attr, ok := input.MessageAttributes["AWS.SNS.SMS.SenderID"]
	require.True(t, ok)
	assert.Equal(t, "BOOKINGS", aws.ToString(attr.StringValue))
}

func TestSMSSender_NoSenderID(t *testing.T) {
	mock := &mockSNS{}
	sender := NewSMSSender(mock, "")

	_, err := sender.Send(context.Background(), dispatch.Message{To: "+4915551234", TextBody: "hi"})
	require.NoError(t, err)
	assert.Empty(t, mock.inputs[0].MessageAttributes)
}

func TestSMSSender_SendFailure(t *testing.T) {
	mock := &mockSNS{
		PublishFunc: func(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
			return nil, fmt.Errorf("Throttling")
		},
	}
	sender := NewSMSSender(mock, "")

	_, err := sender.Send(context.Background(), dispatch.Message{To: "+4915551234"})
	assert.Error(t, err)
}
