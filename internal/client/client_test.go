package client

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Versifine/mcclient/internal/codec"
	"github.com/Versifine/mcclient/internal/event"
	"github.com/Versifine/mcclient/internal/protocol"
	"github.com/Versifine/mcclient/internal/transport"
)

const waitTimeout = 2 * time.Second

// server 是测试驱动的服务端，在测试 goroutine 中同步读写
type server struct {
	t         *testing.T
	conn      net.Conn
	split     *protocol.Splitter
	state     protocol.State
	threshold int
	enc       cipher.Stream
	dec       cipher.Stream
	buf       []byte
}

func (s *server) read() *protocol.Packet {
	s.t.Helper()
	for {
		frame, ok, err := s.split.Next()
		if err != nil {
			s.t.Fatalf("服务端分帧失败: %v", err)
		}
		if ok {
			payload := frame.Payload
			if s.threshold != protocol.CompressionDisabled {
				if payload, err = protocol.Decompress(payload); err != nil {
					s.t.Fatalf("服务端解压失败: %v", err)
				}
			}
			b, err := codec.Bind(codec.Builtin{}, codec.DefaultVersion, true, s.state)
			if err != nil {
				s.t.Fatalf("绑定失败: %v", err)
			}
			pkt, err := b.Decode(payload)
			if err != nil {
				s.t.Fatalf("服务端解码失败: %v", err)
			}
			return pkt
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(waitTimeout))
		n, err := s.conn.Read(s.buf)
		if err != nil {
			s.t.Fatalf("服务端读取失败: %v", err)
		}
		chunk := s.buf[:n]
		if s.dec != nil {
			s.dec.XORKeyStream(chunk, chunk)
		}
		s.split.Write(chunk)
	}
}

func (s *server) expect(name string) *protocol.Packet {
	s.t.Helper()
	pkt := s.read()
	if pkt.Name != name {
		s.t.Fatalf("期望 %s, 实际 %s", name, pkt.Name)
	}
	return pkt
}

func (s *server) writeRaw(payload []byte) {
	s.t.Helper()
	if s.threshold != protocol.CompressionDisabled {
		var err error
		if payload, err = protocol.Compress(payload, s.threshold); err != nil {
			s.t.Fatalf("压缩失败: %v", err)
		}
	}
	out := protocol.AppendFrame(nil, payload)
	if s.enc != nil {
		s.enc.XORKeyStream(out, out)
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(waitTimeout))
	if _, err := s.conn.Write(out); err != nil {
		s.t.Fatalf("服务端写入失败: %v", err)
	}
}

func (s *server) write(name string, params any) {
	s.t.Helper()
	b, err := codec.Bind(codec.Builtin{}, codec.DefaultVersion, true, s.state)
	if err != nil {
		s.t.Fatalf("绑定失败: %v", err)
	}
	data, err := b.Encode(name, params)
	if err != nil {
		s.t.Fatalf("编码 %s 失败: %v", name, err)
	}
	s.writeRaw(data)
}

func (s *server) encryptWith(secret []byte) {
	enc, dec, err := protocol.NewCipherPair(secret)
	if err != nil {
		s.t.Fatalf("创建密码器失败: %v", err)
	}
	s.enc, s.dec = enc, dec
	s.split.XORBuffered(dec)
}

// handshake 读取握手和登录开始包
func (s *server) handshake() *codec.LoginStart {
	s.t.Helper()
	hs := s.expect(codec.NameSetProtocol).Params.(*codec.Handshake)
	if hs.NextState != codec.NextStateLogin {
		s.t.Errorf("握手 next state 期望 %d, 实际 %d", codec.NextStateLogin, hs.NextState)
	}
	s.state = protocol.Login
	return s.expect(codec.NameLoginStart).Params.(*codec.LoginStart)
}

// pipeDialer 返回的服务端在测试 goroutine 中使用
func pipeDialer(t *testing.T) (transport.Dialer, chan *server) {
	servers := make(chan *server, 2)
	d := transport.DialerFunc(func(ctx context.Context, host string, port int) (transport.Conn, error) {
		c, s := net.Pipe()
		servers <- &server{
			t:         t,
			conn:      s,
			split:     protocol.NewSplitter(),
			threshold: protocol.CompressionDisabled,
			buf:       make([]byte, 4096),
		}
		t.Cleanup(func() { _ = s.Close() })
		return c, nil
	})
	return d, servers
}

type fakeJoiner struct {
	mu        sync.Mutex
	calls     int
	token     string
	profile   uuid.UUID
	serverID  string
	secret    []byte
	publicKey []byte
	err       error
}

func (j *fakeJoiner) Join(ctx context.Context, accessToken string, profileID uuid.UUID, serverID string, secret, publicKey []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	j.token, j.profile, j.serverID = accessToken, profileID, serverID
	j.secret = append([]byte(nil), secret...)
	j.publicKey = publicKey
	return j.err
}

type errorObserver struct {
	mu   sync.Mutex
	errs []error
}

func (o *errorObserver) SessionStarted() {}
func (o *errorObserver) SessionEnded(string) {}
func (o *errorObserver) BytesRead(int) {}
func (o *errorObserver) BytesWritten(int) {}
func (o *errorObserver) PacketRead(protocol.Metadata) {}
func (o *errorObserver) PacketWritten(protocol.Metadata) {}
func (o *errorObserver) StateChanged(_, _ protocol.State) {}
func (o *errorObserver) FrameDropped(error) {}
func (o *errorObserver) Error(err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

func (o *errorObserver) find(target any) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, err := range o.errs {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}

func (o *errorObserver) is(target error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, err := range o.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func connect(t *testing.T, cfg Config, opts ...Option) (*Client, *server) {
	t.Helper()
	dialer, servers := pipeDialer(t)
	opts = append([]Option{WithDialer(dialer), WithLogger(quietLogger())}, opts...)
	if cfg.Version == 0 {
		cfg.Version = codec.DefaultVersion
	}
	if cfg.Username == "" {
		cfg.Username = "Steve"
	}
	c := New(cfg, opts...)
	sess, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}
	t.Cleanup(sess.Close)
	return c, <-servers
}

func awaitEnd(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case <-c.Session().Done():
		return c.Session().EndReason()
	case <-time.After(waitTimeout):
		t.Fatal("等待 session 结束超时")
		return ""
	}
}

// TestOfflineLogin 测试离线登录进入 Play 状态
func TestOfflineLogin(t *testing.T) {
	c, srv := connect(t, Config{Host: "mc.example.com", Port: 25565, Username: "Alex"})

	start := srv.handshake()
	if start.Username != "Alex" {
		t.Errorf("用户名 期望 Alex, 实际 %s", start.Username)
	}

	id := uuid.MustParse("8667ba71-b85a-4004-af54-457a9734eed7")
	srv.write(codec.NameSuccess, &codec.LoginSuccess{UUID: id, Username: "Alex"})
	srv.state = protocol.Play

	deadline := time.Now().Add(waitTimeout)
	for c.Session().State() != protocol.Play && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := c.Session().State(); got != protocol.Play {
		t.Fatalf("状态 期望 play, 实际 %s", got)
	}
	gotID, name := c.Profile()
	if gotID != id || name != "Alex" {
		t.Errorf("Profile = %s %s", gotID, name)
	}
}

// TestOnlineLogin 测试加密、压缩和 keep-alive 的完整登录流程
func TestOnlineLogin(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("生成密钥失败: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("编码公钥失败: %v", err)
	}

	joiner := &fakeJoiner{}
	profile := uuid.New()
	c, srv := connect(t, Config{
		Username:    "Steve",
		AccessToken: "token",
		ProfileID:   profile,
		KeepAlive:   true,
	}, WithJoiner(joiner))

	srv.handshake()
	verify := []byte{1, 2, 3, 4}
	srv.write(codec.NameEncryptionBegin, &codec.EncryptionRequest{ServerID: "", PublicKey: der, VerifyToken: verify})

	resp := srv.expect(codec.NameEncryptionBegin).Params.(*codec.EncryptionResponse)
	secret, err := rsa.DecryptPKCS1v15(rand.Reader, key, resp.SharedSecret)
	if err != nil {
		t.Fatalf("解密共享密钥失败: %v", err)
	}
	token, err := rsa.DecryptPKCS1v15(rand.Reader, key, resp.VerifyToken)
	if err != nil {
		t.Fatalf("解密验证令牌失败: %v", err)
	}
	if !bytes.Equal(token, verify) {
		t.Errorf("验证令牌 期望 %x, 实际 %x", verify, token)
	}
	if len(secret) != protocol.SharedSecretLen {
		t.Fatalf("共享密钥长度 期望 %d, 实际 %d", protocol.SharedSecretLen, len(secret))
	}

	joiner.mu.Lock()
	if joiner.calls != 1 || joiner.token != "token" || joiner.profile != profile {
		t.Errorf("Join 参数不正确: calls=%d token=%s profile=%s", joiner.calls, joiner.token, joiner.profile)
	}
	if !bytes.Equal(joiner.secret, secret) || !bytes.Equal(joiner.publicKey, der) {
		t.Error("Join 应该收到同一个共享密钥和公钥")
	}
	joiner.mu.Unlock()

	srv.encryptWith(secret)
	srv.write(codec.NameCompress, &codec.SetCompression{Threshold: 256})
	srv.threshold = 256
	srv.write(codec.NameSuccess, &codec.LoginSuccess{UUID: profile, Username: "Steve"})
	srv.state = protocol.Play

	srv.write(codec.NameKeepAlive, &codec.KeepAlive{KeepAliveID: 42})
	echo := srv.expect(codec.NameKeepAlive).Params.(*codec.KeepAlive)
	if echo.KeepAliveID != 42 {
		t.Errorf("keep-alive 期望 42, 实际 %d", echo.KeepAliveID)
	}

	sess := c.Session()
	if !sess.EncryptionEnabled() {
		t.Error("加密应该已启用")
	}
	if sess.CompressionThreshold() != 256 {
		t.Errorf("压缩阈值 期望 256, 实际 %d", sess.CompressionThreshold())
	}
	if sess.State() != protocol.Play {
		t.Errorf("状态 期望 play, 实际 %s", sess.State())
	}
}

// TestAuthenticationFailure 测试会话服务器拒绝时结束连接
func TestAuthenticationFailure(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 1024)
	der, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)

	obs := &errorObserver{}
	joiner := &fakeJoiner{err: &protocol.AuthenticationError{StatusCode: 403, Message: "Invalid token."}}
	c, srv := connect(t, Config{AccessToken: "bad", ProfileID: uuid.New()}, WithJoiner(joiner), WithObserver(obs))

	srv.handshake()
	srv.write(codec.NameEncryptionBegin, &codec.EncryptionRequest{ServerID: "abc", PublicKey: der, VerifyToken: []byte{9}})

	if reason := awaitEnd(t, c); reason != "AuthenticationFailed" {
		t.Errorf("结束原因 期望 AuthenticationFailed, 实际 %s", reason)
	}
	var authErr *protocol.AuthenticationError
	if !obs.find(&authErr) || authErr.StatusCode != 403 {
		t.Errorf("应该发布认证错误, 实际 %+v", authErr)
	}
}

// TestBadPublicKey 测试服务端公钥无效
func TestBadPublicKey(t *testing.T) {
	obs := &errorObserver{}
	c, srv := connect(t, Config{}, WithObserver(obs))

	srv.handshake()
	srv.write(codec.NameEncryptionBegin, &codec.EncryptionRequest{ServerID: "-", PublicKey: []byte("not a key"), VerifyToken: []byte{1}})

	if reason := awaitEnd(t, c); reason != "EncryptionFailed" {
		t.Errorf("结束原因 期望 EncryptionFailed, 实际 %s", reason)
	}
	var setup *protocol.EncryptionSetupError
	if !obs.find(&setup) {
		t.Error("应该发布 EncryptionSetupError")
	}
	if c.Session().EncryptionEnabled() {
		t.Error("加密不应该启用")
	}
}

// failingCodec 编码指定包名时返回错误
type failingCodec struct {
	codec.Codec
	name string
}

var errEncode = errors.New("encode failed")

func (f failingCodec) Encode(name string, params any) ([]byte, error) {
	if name == f.name {
		return nil, errEncode
	}
	return f.Codec.Encode(name, params)
}

// TestEncryptionResponseWriteFailure 测试加密响应写入失败时结束 session
func TestEncryptionResponseWriteFailure(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("生成密钥失败: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("编码公钥失败: %v", err)
	}
	provider := codec.ProviderFunc(func(k codec.Key) (codec.Codec, error) {
		c, err := codec.Builtin{}.Codec(k)
		if err != nil || k.State != protocol.Login || k.Direction != protocol.ToServer {
			return c, err
		}
		return failingCodec{Codec: c, name: codec.NameEncryptionBegin}, nil
	})

	obs := &errorObserver{}
	c, srv := connect(t, Config{}, WithProvider(provider), WithObserver(obs))
	srv.handshake()
	srv.write(codec.NameEncryptionBegin, &codec.EncryptionRequest{ServerID: "-", PublicKey: der, VerifyToken: []byte{1, 2}})

	if reason := awaitEnd(t, c); reason != "EncryptionFailed" {
		t.Errorf("结束原因 期望 EncryptionFailed, 实际 %s", reason)
	}
	if c.Session().EncryptionEnabled() {
		t.Error("响应未发出时不应该启用加密")
	}
	if !obs.is(errEncode) {
		t.Error("应该发布编码错误")
	}
}

// TestLoginPluginRequest 测试拒绝登录插件请求
func TestLoginPluginRequest(t *testing.T) {
	_, srv := connect(t, Config{})
	srv.handshake()

	srv.write(codec.NameLoginPluginRequest, &codec.LoginPluginRequest{MessageID: 7, Channel: "velocity:player_info", Data: []byte{1}})
	resp := srv.expect(codec.NameLoginPluginResponse).Params.(*codec.LoginPluginResponse)
	if resp.MessageID != 7 {
		t.Errorf("message id 期望 7, 实际 %d", resp.MessageID)
	}
	if resp.Data != nil {
		t.Errorf("应该回复不理解, 实际 data=%x", resp.Data)
	}
}

// TestDisconnectVersionMismatch 测试版本不匹配的踢出
func TestDisconnectVersionMismatch(t *testing.T) {
	obs := &errorObserver{}
	c, srv := connect(t, Config{}, WithObserver(obs))
	srv.handshake()

	srv.write(codec.NameDisconnect, &codec.Disconnect{Reason: `{"translate":"multiplayer.disconnect.outdated_server","with":["1.12.2"]}`})

	awaitEnd(t, c)
	var mismatch *VersionMismatchError
	if !obs.find(&mismatch) {
		t.Fatal("应该发布 VersionMismatchError")
	}
	if mismatch.Required != "1.12.2" || mismatch.Current != codec.DefaultVersion {
		t.Errorf("VersionMismatchError = %+v", mismatch)
	}
}

// TestKickInPlay 测试 Play 状态被踢出时的结束原因
func TestKickInPlay(t *testing.T) {
	c, srv := connect(t, Config{})
	srv.handshake()
	srv.write(codec.NameSuccess, &codec.LoginSuccess{UUID: uuid.New(), Username: "Steve"})
	srv.state = protocol.Play
	srv.write(codec.NameKickDisconnect, &codec.Disconnect{Reason: `{"text":"Server closed"}`})

	if reason := awaitEnd(t, c); reason != "Server closed" {
		t.Errorf("结束原因 期望 Server closed, 实际 %s", reason)
	}
}

// TestKeepAliveTimeout 测试服务端停止发送 keep-alive 后结束连接
func TestKeepAliveTimeout(t *testing.T) {
	c, srv := connect(t, Config{KeepAlive: true, CheckTimeout: 50 * time.Millisecond})
	srv.handshake()
	srv.write(codec.NameSuccess, &codec.LoginSuccess{UUID: uuid.New(), Username: "Steve"})
	srv.state = protocol.Play

	srv.write(codec.NameKeepAlive, &codec.KeepAlive{KeepAliveID: 5})
	srv.expect(codec.NameKeepAlive)

	if reason := awaitEnd(t, c); reason != event.ReasonKeepAliveTimeout {
		t.Errorf("结束原因 期望 %s, 实际 %s", event.ReasonKeepAliveTimeout, reason)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepAlive != nil {
		t.Error("结束后 keep-alive 定时器应该被清除")
	}
}

// TestUnhandledPlayPacket 测试未知 Play 包只计数不结束连接
func TestUnhandledPlayPacket(t *testing.T) {
	c, srv := connect(t, Config{KeepAlive: true})
	srv.handshake()
	srv.write(codec.NameSuccess, &codec.LoginSuccess{UUID: uuid.New(), Username: "Steve"})
	srv.state = protocol.Play

	for i := 0; i < 3; i++ {
		srv.writeRaw([]byte{0x7f, 0x00})
	}
	// 处理器按顺序运行，收到回复说明前面的包已经处理完
	srv.write(codec.NameKeepAlive, &codec.KeepAlive{KeepAliveID: 1})
	srv.expect(codec.NameKeepAlive)

	c.mu.Lock()
	count := c.unhandled[0x7f]
	c.mu.Unlock()
	if count != 3 {
		t.Errorf("未知包计数 期望 3, 实际 %d", count)
	}
	if c.Session().EndReason() != "" {
		t.Errorf("未知包不应该结束连接, 结束原因 %s", c.Session().EndReason())
	}
}

// TestRunShutdown 测试取消 context 时优雅结束
func TestRunShutdown(t *testing.T) {
	dialer, servers := pipeDialer(t)
	c := New(Config{Version: codec.DefaultVersion, Username: "Steve"}, WithDialer(dialer), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		reason string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		reason, err := c.Run(ctx)
		done <- result{reason, err}
	}()

	srv := <-servers
	srv.handshake()
	cancel()

	select {
	case r := <-done:
		if r.err != nil || r.reason != ReasonShutdown {
			t.Errorf("Run 期望 %s, 实际 %q %v", ReasonShutdown, r.reason, r.err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run 没有返回")
	}
}

// TestDetectVersion 测试版本为 0 时先 ping 服务器
func TestDetectVersion(t *testing.T) {
	dialer, servers := pipeDialer(t)
	c := New(Config{Username: "Steve"}, WithDialer(dialer), WithLogger(quietLogger()))

	type result struct {
		version int
		err     error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := c.Connect(context.Background())
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{version: sess.Version()}
	}()

	status := <-servers
	if status.expect(codec.NameSetProtocol).Params.(*codec.Handshake).NextState != codec.NextStateStatus {
		t.Error("第一次连接应该是状态查询")
	}
	status.state = protocol.Status
	status.expect(codec.NamePingStart)
	status.write(codec.NameServerInfo, &codec.ServerInfo{Response: `{"version":{"name":"1.16.5","protocol":754},"players":{"max":1,"online":0}}`})
	ping := status.expect(codec.NamePing)
	status.write(codec.NamePing, ping.Params)

	var srv *server
	select {
	case srv = <-servers:
	case <-time.After(waitTimeout):
		t.Fatal("没有发起登录连接")
	}
	hs := srv.expect(codec.NameSetProtocol).Params.(*codec.Handshake)
	if hs.ProtocolVersion != 754 || hs.NextState != codec.NextStateLogin {
		t.Errorf("登录握手不正确: %+v", hs)
	}

	r := <-done
	if r.err != nil {
		t.Fatalf("Connect 失败: %v", r.err)
	}
	t.Cleanup(c.Session().Close)
	if r.version != 754 {
		t.Errorf("版本 期望 754, 实际 %d", r.version)
	}
}

// TestUnsupportedVersion 测试没有编解码表的版本在连接前报错
func TestUnsupportedVersion(t *testing.T) {
	dialer, servers := pipeDialer(t)
	c := New(Config{Username: "Steve", Version: 1000}, WithDialer(dialer), WithLogger(quietLogger()))

	if _, err := c.Connect(context.Background()); !errors.Is(err, codec.ErrUnsupportedVersion) {
		t.Fatalf("期望 ErrUnsupportedVersion, 实际 %v", err)
	}
	select {
	case <-servers:
		t.Error("不支持的版本不应该发起连接")
	default:
	}

	// 1.14.4 有自己的 play 表
	c2, srv := connect(t, Config{Version: 498})
	if c2.Session().Version() != 498 {
		t.Errorf("版本 期望 498, 实际 %d", c2.Session().Version())
	}
	if hs := srv.expect(codec.NameSetProtocol).Params.(*codec.Handshake); hs.ProtocolVersion != 498 {
		t.Errorf("握手版本 期望 498, 实际 %d", hs.ProtocolVersion)
	}
}

// TestChatText 测试聊天组件转文本
func TestChatText(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   string
	}{
		{name: "纯文本", reason: "Server closed", want: "Server closed"},
		{name: "JSON 字符串", reason: `"Kicked"`, want: "Kicked"},
		{name: "text 字段", reason: `{"text":"Banned"}`, want: "Banned"},
		{name: "extra", reason: `{"text":"You are ","extra":[{"text":"banned"},"!"]}`, want: "You are banned!"},
		{name: "translate", reason: `{"translate":"multiplayer.disconnect.outdated_client","with":["1.16.5"]}`, want: "multiplayer.disconnect.outdated_client 1.16.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chatText(tt.reason); got != tt.want {
				t.Errorf("期望 %q, 实际 %q", tt.want, got)
			}
		})
	}
}

// TestRequiredVersion 测试从踢出原因中提取版本
func TestRequiredVersion(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   string
	}{
		{name: "translate 客户端过旧", reason: `{"translate":"multiplayer.disconnect.outdated_client","with":["1.20.1"]}`, want: "1.20.1"},
		{name: "旧版文本", reason: `{"text":"Outdated server! I'm still on 1.8.9"}`, want: "1.8.9"},
		{name: "纯文本", reason: "Outdated client! Please use 1.12.2", want: "1.12.2"},
		{name: "无关原因", reason: `{"text":"Server closed"}`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requiredVersion(tt.reason); got != tt.want {
				t.Errorf("期望 %q, 实际 %q", tt.want, got)
			}
		})
	}
}
