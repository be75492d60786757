package mailer

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	logx "mailblast/pkg/logx"
)

type SESConfig struct {
	Region           string
	ConfigurationSet string
}

// sesAPI is the part of *sesv2.Client SES uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SES struct {
	client sesAPI
	render *Renderer
	cfgSet string
	log    logx.Logger
}

// NewSES resolves AWS credentials the default way (env, shared config, role).
func NewSES(ctx context.Context, cfg SESConfig, r *Renderer, log logx.Logger) (*SES, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return newSESWithClient(sesv2.NewFromConfig(awsCfg), cfg, r, log), nil
}

func newSESWithClient(client sesAPI, cfg SESConfig, r *Renderer, log logx.Logger) *SES {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SES{client: client, render: r, cfgSet: cfg.ConfigurationSet, log: log}
}

func (s *SES) Send(ctx context.Context, to string) error {
	msg, err := s.render.Render(to)
	if err != nil {
		return &SendError{Reason: ReasonOther, To: to, Err: err}
	}

	body := &types.Body{Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if s.cfgSet != "" {
		in.ConfigurationSetName = aws.String(s.cfgSet)
	}

	out, err := s.client.SendEmail(ctx, in)
	if err != nil {
		return &SendError{Reason: classifySES(err), To: to, Err: err}
	}
	if out != nil && out.MessageId != nil {
		s.log.Debug("ses accepted message", logx.String("message_id", *out.MessageId))
	}
	return nil
}

func classifySES(err error) Reason {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return ReasonOther
	}
	switch code := ae.ErrorCode(); {
	case code == "AccessDeniedException",
		code == "UnrecognizedClientException",
		code == "InvalidClientTokenId",
		strings.HasPrefix(code, "Signature"):
		return ReasonAuth
	default:
		return ReasonProtocol
	}
}
