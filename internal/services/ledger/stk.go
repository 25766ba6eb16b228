package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"kcb-payments-workbench/internal/kcb"
	"kcb-payments-workbench/internal/models"
	"kcb-payments-workbench/internal/rpc"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	doctypeSettings = "KCB Mpesa Settings"

	callbackPath = "/api/method/" + rpc.MethodSTKPushCallback
)

// CallbackURL is where KCB posts STK push results for this site.
func (s *Service) CallbackURL() string {
	return s.siteURL + callbackPath
}

// GenerateSTKPush sends a push prompt for an STK request and records the
// gateway's answer on it. Gateway failures are reported in the result, not
// as errors; errors are reserved for missing documents and credentials.
func (s *Service) GenerateSTKPush(ctx context.Context, args rpc.STKPushArgs) (rpc.STKPushResult, error) {
	if args.CallbackURL == "" {
		args.CallbackURL = s.CallbackURL()
	}
	if absent := missingPushFields(args); len(absent) > 0 {
		s.log.Error("stk push missing required fields", zap.Strings("fields", absent))
	}

	settings, err := s.stk.Settings(ctx, args.Settings)
	if err != nil {
		return rpc.STKPushResult{}, missing(err, doctypeSettings, args.Settings)
	}
	req, err := s.stk.GetByName(ctx, args.KCBMpesaSTKRequest)
	if err != nil {
		return rpc.STKPushResult{}, missing(err, rpc.DoctypeSTKRequest, args.KCBMpesaSTKRequest)
	}

	token, err := s.accessToken(ctx, settings)
	if err != nil {
		return rpc.STKPushResult{}, err
	}

	body := kcb.STKPushRequest{
		PhoneNumber:            args.PhoneNumber,
		Amount:                 args.RequestAmount,
		InvoiceNumber:          args.InvoiceNumber,
		SharedShortCode:        true,
		CallbackURL:            args.CallbackURL,
		TransactionDescription: args.TransactionDescription,
	}

	resp, err := s.kcb.STKPush(ctx, settings.Sandbox, token, body)
	if err != nil {
		s.log.Error("kcb stk push failed", zap.String("request", req.Name), zap.Error(err))
		s.failRequest(ctx, req, "Network error", err.Error())
		return rpc.STKPushResult{StatusCode: http.StatusInternalServerError, Error: err.Error()}, nil
	}

	s.log.Info("kcb stk push sent",
		zap.String("request", req.Name),
		zap.String("message_id", resp.MessageID),
		zap.String("phone_number", args.PhoneNumber),
		zap.Int("status_code", resp.StatusCode),
	)

	decoded, err := resp.Decode()
	if err != nil {
		s.log.Error("invalid json in kcb stk push response", zap.ByteString("body", resp.Body))
		s.failRequest(ctx, req, "Invalid JSON response", string(resp.Body))
		return rpc.STKPushResult{StatusCode: resp.StatusCode, Error: "Invalid JSON response from KCB API"}, nil
	}

	applyPushOutcome(req, resp, decoded)
	if err := s.stk.Save(ctx, req); err != nil {
		return rpc.STKPushResult{}, err
	}

	return rpc.STKPushResult{StatusCode: resp.StatusCode, Response: json.RawMessage(resp.Body)}, nil
}

func applyPushOutcome(req *models.STKRequest, resp *kcb.STKPushResponse, body kcb.STKPushBody) {
	req.RawResponse = datatypes.JSON(resp.Body)

	switch {
	case (resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated) && body.Response != nil:
		ack := body.Response
		req.ResponseCode = ack.ResponseCode.String()
		req.ResponseDescription = ack.ResponseDescription
		req.CustomerMessage = ack.CustomerMessage
		if ack.ResponseCode == "0" {
			req.MerchantRequestID = ack.MerchantRequestID
			req.CheckoutRequestID = ack.CheckoutRequestID
			req.Status = models.STKInProgress
			req.ErrorMessage = ""
			req.ErrorDescription = ""
		} else {
			req.Status = models.STKFailed
			req.ErrorMessage = "Business-level error"
			req.ErrorDescription = string(resp.Body)
		}

	case resp.StatusCode >= http.StatusBadRequest:
		req.Status = models.STKFailed
		req.ResponseCode = body.Code.String()
		req.ErrorMessage = body.Message.String()
		req.ErrorDescription = body.Description.String()
		if req.ErrorDescription == "" {
			req.ErrorDescription = string(resp.Body)
		}
	}
}

func (s *Service) failRequest(ctx context.Context, req *models.STKRequest, message, description string) {
	req.Status = models.STKFailed
	req.ErrorMessage = message
	req.ErrorDescription = description
	if err := s.stk.Save(ctx, req); err != nil {
		s.log.Error("saving failed stk request", zap.String("request", req.Name), zap.Error(err))
	}
}

func missingPushFields(args rpc.STKPushArgs) []string {
	var out []string
	if args.PaymentGateway == "" {
		out = append(out, "payment_gateway")
	}
	if args.PhoneNumber == "" {
		out = append(out, "phone_number")
	}
	if args.RequestAmount.IsZero() {
		out = append(out, "request_amount")
	}
	if args.CallbackURL == "" {
		out = append(out, "callback_url")
	}
	return out
}

// accessToken returns the cached token or requests and stores a new one.
func (s *Service) accessToken(ctx context.Context, settings *models.MpesaSettings) (string, error) {
	now := s.now()
	if settings.TokenValid(now) {
		return settings.AccessToken, nil
	}
	if settings.Username == "" || settings.Password == "" {
		return "", invalid("KCB Mpesa credentials not found. Please check your settings.")
	}

	tok, err := s.kcb.Token(ctx, settings.Sandbox, settings.Username, settings.Password)
	if err != nil {
		s.log.Error("refresh token failed", zap.String("settings", settings.Name), zap.Error(err))
		return "", invalid("Failed to retrieve access token. Please check KCB Mpesa Settings.")
	}

	expiry := tok.ExpiresAt(now)
	settings.AccessToken = tok.AccessToken
	settings.TokenExpiry = &expiry
	if err := s.stk.SaveSettings(ctx, settings); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// HandleSTKCallback records a push result posted by KCB.
func (s *Service) HandleSTKCallback(ctx context.Context, raw []byte) kcb.CallbackAck {
	if len(strings.TrimSpace(string(raw))) == 0 {
		s.log.Error("kcb stk callback: empty request body")
		return kcb.CallbackAck{Status: "failed", Reason: "Empty request body"}
	}

	var payload kcb.STKCallback
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Error("kcb stk callback: invalid json", zap.ByteString("body", raw))
		return kcb.CallbackAck{Status: "failed", Reason: "Invalid JSON payload"}
	}
	cb := payload.Body.STKCallback
	if cb == nil {
		s.log.Error("kcb stk callback: missing stkCallback", zap.ByteString("body", raw))
		return kcb.CallbackAck{Status: "failed", Reason: "Missing stkCallback in payload"}
	}

	req, err := s.stk.FindByCallbackIDs(ctx, cb.MerchantRequestID, cb.CheckoutRequestID)
	if notFound(err) {
		s.log.Error("kcb stk callback: no stk request",
			zap.String("merchant_request_id", cb.MerchantRequestID),
			zap.String("checkout_request_id", cb.CheckoutRequestID),
		)
		return kcb.CallbackAck{Status: "failed", Reason: "STK Request not found"}
	}
	if err != nil {
		return kcb.CallbackAck{Status: "failed", Reason: err.Error()}
	}

	now := s.now()
	req.ResultCode = cb.ResultCode
	req.ResultDesc = cb.ResultDesc
	req.CallbackReceivedAt = &now

	if cb.Succeeded() {
		md := cb.Metadata()
		if amount, err := decimal.NewFromString(md["Amount"]); err == nil {
			req.TransactionAmount = amount
		}
		req.MpesaReceiptNumber = md["MpesaReceiptNumber"]
		req.TransactionDate = md["TransactionDate"]
		req.CallbackPhoneNumber = md["PhoneNumber"]
		req.Status = models.STKCompleted
	} else {
		req.Status = models.STKFailed
	}

	if err := s.stk.Save(ctx, req); err != nil {
		return kcb.CallbackAck{Status: "failed", Reason: err.Error()}
	}

	resultCode := ""
	if cb.ResultCode != nil {
		resultCode = strconv.Itoa(*cb.ResultCode)
	}
	s.log.Info("kcb stk callback processed",
		zap.String("merchant_request_id", cb.MerchantRequestID),
		zap.String("checkout_request_id", cb.CheckoutRequestID),
		zap.String("result_code", resultCode),
		zap.String("result_description", cb.ResultDesc),
	)
	return kcb.CallbackAck{Status: "success", Message: "Callback processed"}
}
