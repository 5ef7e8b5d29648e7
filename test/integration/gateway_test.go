// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/worldgate/internal/auth"
	authpg "github.com/holomush/worldgate/internal/auth/postgres"
	authredis "github.com/holomush/worldgate/internal/auth/redis"
	"github.com/holomush/worldgate/internal/clock"
	"github.com/holomush/worldgate/internal/presence"
	"github.com/holomush/worldgate/internal/protocol"
	"github.com/holomush/worldgate/internal/relay"
	"github.com/holomush/worldgate/internal/session"
	"github.com/holomush/worldgate/internal/transport"
)

// gatewayEnv is one gateway wired to the suite database.
type gatewayEnv struct {
	ctx      context.Context
	cancel   context.CancelFunc
	store    *authpg.Store
	presence *presence.Registry
	server   *transport.Server
	redis    *miniredis.Miniredis
}

func startGateway() *gatewayEnv {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	resetTables(ctx)

	env := &gatewayEnv{
		ctx:      ctx,
		cancel:   cancel,
		store:    authpg.NewStore(pool),
		presence: presence.NewRegistry(),
	}

	env.redis = miniredis.NewMiniRedis()
	Expect(env.redis.Start()).To(Succeed())
	attempts := authredis.NewWithClient(
		redis.NewClient(&redis.Options{Addr: env.redis.Addr()}),
		authredis.Config{TTL: time.Hour},
	)

	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	Expect(err).NotTo(HaveOccurred())

	router := relay.NewRouter()
	coord, err := session.New(session.Config{
		Store:        env.store,
		Attempts:     attempts,
		Hasher:       hasher,
		Presence:     env.presence,
		Router:       router,
		Clock:        clock.New(),
		PlayersPerIP: 3,
	})
	Expect(err).NotTo(HaveOccurred())

	env.server, err = transport.NewServer(transport.Config{
		Addr:     "127.0.0.1:0",
		Worlds:   []session.World{{ID: 1, Name: "lobby"}, {ID: 2, Name: "arena"}},
		Sessions: coord,
		Router:   router,
	})
	Expect(err).NotTo(HaveOccurred())
	_, err = env.server.Start()
	Expect(err).NotTo(HaveOccurred())
	return env
}

func (env *gatewayEnv) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = env.server.Stop(ctx)
	env.redis.Close()
	env.cancel()
}

func (env *gatewayEnv) dial(world string) *websocket.Conn {
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+env.server.Addr()+"/v1/worlds/"+world+"/link", nil)
	Expect(err).NotTo(HaveOccurred())
	_ = resp.Body.Close()
	DeferCleanup(func() { _ = conn.Close() })
	return conn
}

// next reads one frame and reports whether it is a presence event.
func next(conn *websocket.Conn) (map[string]json.RawMessage, []byte) {
	Expect(conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
	_, data, err := conn.ReadMessage()
	Expect(err).NotTo(HaveOccurred())
	var fields map[string]json.RawMessage
	Expect(json.Unmarshal(data, &fields)).To(Succeed())
	return fields, data
}

// call writes frame and decodes the first non-event reply into out.
func call(conn *websocket.Conn, frame string, out any) {
	Expect(conn.WriteMessage(websocket.TextMessage, []byte(frame))).To(Succeed())
	for {
		fields, data := next(conn)
		if _, isEvent := fields["handler"]; isEvent {
			continue
		}
		Expect(json.Unmarshal(data, out)).To(Succeed())
		return
	}
}

// nextEvent skips replies until a presence event arrives.
func nextEvent(conn *websocket.Conn) protocol.Envelope {
	for {
		fields, data := next(conn)
		if _, isEvent := fields["handler"]; !isEvent {
			continue
		}
		var ev protocol.Envelope
		Expect(json.Unmarshal(data, &ev)).To(Succeed())
		return ev
	}
}

const (
	registerDave = `{"handler":"playerRegister","token":"r1","username":"Dave","password":"secret123","address":"10.1.0.1"}`
	loginDave    = `{"handler":"playerLogin","token":"l1","username":"dave","password":"secret123","address":"10.1.0.1"}`
)

var _ = Describe("Gateway", func() {
	var env *gatewayEnv

	BeforeEach(func() {
		env = startGateway()
	})

	AfterEach(func() {
		env.stop()
	})

	It("registers, logs in and logs out through PostgreSQL", func() {
		lobby := env.dial("1")
		arena := env.dial("2")

		var count protocol.CountResponse
		call(arena, `{"handler":"playerCount","token":"c0"}`, &count)
		Expect(count.Count).To(BeZero())

		var reg protocol.RegisterResponse
		call(lobby, registerDave, &reg)
		Expect(reg.Success).To(BeTrue())
		Expect(reg.Code).To(Equal(protocol.CodeRegisterSuccess))

		var again protocol.RegisterResponse
		call(lobby, `{"handler":"playerRegister","token":"r2","username":"DAVE","password":"secret123","address":"10.1.0.2"}`, &again)
		Expect(again.Code).To(Equal(protocol.CodeRegisterDuplicateUsername))

		var login protocol.LoginResponse
		call(lobby, loginDave, &login)
		Expect(login.Success).To(BeTrue())
		Expect(login.Code).To(Equal(protocol.CodeLoginSuccess))
		Expect(login.Player).NotTo(BeNil())
		Expect(login.Player.Username).To(Equal("Dave"))

		ev := nextEvent(arena)
		Expect(ev.Handler).To(Equal("playerLoggedIn"))
		Expect(ev.Username).To(Equal("dave"))

		account, err := env.store.GetByUsername(env.ctx, "dave")
		Expect(err).NotTo(HaveOccurred())
		Expect(account.LastLoginAt).NotTo(BeNil())
		Expect(env.presence.WorldOf("dave")).To(Equal(1))

		var dup protocol.LoginResponse
		call(arena, `{"handler":"playerLogin","token":"l2","username":"dave","password":"secret123","address":"10.1.0.1"}`, &dup)
		Expect(dup.Code).To(Equal(protocol.CodeAlreadyLoggedIn))

		Expect(lobby.WriteMessage(websocket.TextMessage, []byte(`{"handler":"playerLogout","token":"o1","username":"dave"}`))).To(Succeed())
		ev = nextEvent(arena)
		Expect(ev.Handler).To(Equal("playerLoggedOut"))
		Expect(ev.Username).To(Equal("dave"))
		Eventually(func() bool { return env.presence.Contains("dave") }).Should(BeFalse())
	})

	It("rejects banned accounts stored in the database", func() {
		lobby := env.dial("1")

		var reg protocol.RegisterResponse
		call(lobby, registerDave, &reg)
		Expect(reg.Success).To(BeTrue())

		Expect(env.store.SetBanEnd(env.ctx, "dave", auth.PermanentBan)).To(Succeed())

		var login protocol.LoginResponse
		call(lobby, loginDave, &login)
		Expect(login.Success).To(BeFalse())
		Expect(login.Code).To(Equal(protocol.CodePermanentlyBanned))
	})

	It("throttles failed logins with the redis attempt store", func() {
		lobby := env.dial("1")

		var reg protocol.RegisterResponse
		call(lobby, registerDave, &reg)
		Expect(reg.Success).To(BeTrue())

		bad := `{"handler":"playerLogin","token":"b","username":"dave","password":"wrong-pass","address":"10.1.0.7"}`
		for range 5 {
			var login protocol.LoginResponse
			call(lobby, bad, &login)
			Expect(login.Code).To(Equal(protocol.CodeInvalidCredentials))
		}

		var throttled protocol.LoginResponse
		call(lobby, bad, &throttled)
		Expect(throttled.Code).To(Equal(protocol.CodeThrottled))
		Expect(env.redis.Keys()).NotTo(BeEmpty())
	})

	It("clears presence when a world link closes", func() {
		lobby := env.dial("1")
		arena := env.dial("2")

		var reg protocol.RegisterResponse
		call(lobby, registerDave, &reg)
		var login protocol.LoginResponse
		call(lobby, loginDave, &login)
		Expect(login.Success).To(BeTrue())
		Expect(nextEvent(arena).Handler).To(Equal("playerLoggedIn"))

		Expect(lobby.Close()).To(Succeed())

		ev := nextEvent(arena)
		Expect(ev.Handler).To(Equal("playerLoggedOut"))
		Expect(ev.Username).To(Equal("dave"))
		Expect(env.presence.Online()).To(BeZero())
	})
})
