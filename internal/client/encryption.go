package client

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Versifine/mcclient/internal/codec"
	"github.com/Versifine/mcclient/internal/protocol"
	"github.com/Versifine/mcclient/internal/session"
)

const joinTimeout = 30 * time.Second

var errNotRSAKey = errors.New("server public key is not an RSA key")

type encryptionHandler struct {
	client *Client
	sess   *session.Session
}

// handle answers an encryption request. It runs on the read goroutine, so
// the cipher is installed before the next frame is decoded.
func (h *encryptionHandler) handle(pkt *protocol.Packet) {
	req, ok := pkt.Params.(*codec.EncryptionRequest)
	if !ok {
		h.sess.Emit(&protocol.EncryptionSetupError{Err: fmt.Errorf("unexpected encryption_begin params %T", pkt.Params)})
		h.sess.End("EncryptionFailed")
		return
	}
	log := h.sess.Logger()
	_, span := otel.Tracer("github.com/Versifine/mcclient/internal/client").Start(context.Background(), "login.encryption")
	defer span.End()
	span.SetAttributes(attribute.String("minecraft.server_id", req.ServerID))

	secret := make([]byte, protocol.SharedSecretLen)
	if _, err := rand.Read(secret); err != nil {
		h.abort(span, &protocol.EncryptionSetupError{Err: err}, "EncryptionFailed")
		return
	}

	cfg := h.client.cfg
	if cfg.HaveCredentials() && h.client.joiner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		err := h.client.joiner.Join(ctx, cfg.AccessToken, cfg.ProfileID, req.ServerID, secret, req.PublicKey)
		cancel()
		if err != nil {
			var authErr *protocol.AuthenticationError
			if !errors.As(err, &authErr) {
				err = &protocol.AuthenticationError{Err: err}
			}
			h.abort(span, err, "AuthenticationFailed")
			return
		}
		log.Debug("Joined session server", "server_id", req.ServerID)
	} else if req.ServerID != "-" {
		log.Debug("This server appears to be an online server and you are providing no credentials, the login will most likely fail")
	}

	sharedSecret, verifyToken, err := wrapForServer(req.PublicKey, secret, req.VerifyToken)
	if err != nil {
		h.abort(span, &protocol.EncryptionSetupError{Err: err}, "EncryptionFailed")
		return
	}
	// 响应本身以明文发送，之后的数据才加密
	if err := h.sess.Write(codec.NameEncryptionBegin, &codec.EncryptionResponse{
		SharedSecret: sharedSecret,
		VerifyToken:  verifyToken,
	}); err != nil {
		h.stop(span, err, "EncryptionFailed")
		return
	}
	if err := h.sess.SetEncryption(secret); err != nil {
		h.stop(span, err, "EncryptionFailed")
		return
	}
	span.SetStatus(codes.Ok, "")
	log.Info("Encryption enabled")
}

func (h *encryptionHandler) abort(span trace.Span, err error, reason string) {
	h.sess.Emit(err)
	h.stop(span, err, reason)
}

// stop ends the session for an error the session already published.
func (h *encryptionHandler) stop(span trace.Span, err error, reason string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.sess.End(reason)
}

// wrapForServer encrypts secret and token with the server's DER encoded
// public key using PKCS#1 v1.5.
func wrapForServer(publicKey, secret, token []byte) (wrappedSecret, wrappedToken []byte, err error) {
	key, err := x509.ParsePKIXPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("parse server public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, nil, errNotRSAKey
	}
	if wrappedSecret, err = rsa.EncryptPKCS1v15(rand.Reader, rsaKey, secret); err != nil {
		return nil, nil, err
	}
	if wrappedToken, err = rsa.EncryptPKCS1v15(rand.Reader, rsaKey, token); err != nil {
		return nil, nil, err
	}
	return wrappedSecret, wrappedToken, nil
}
