// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/worldgate/internal/auth"
	"github.com/holomush/worldgate/internal/auth/postgres"
)

var _ = Describe("Store", func() {
	var (
		ctx context.Context
		s   *postgres.Store
		now time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = postgres.NewStore(testPool)
		now = time.Now().UTC().Truncate(time.Microsecond)

		_, err := testPool.Exec(ctx, `TRUNCATE accounts, login_history, login_attempts`)
		Expect(err).NotTo(HaveOccurred())
	})

	create := func(username, address string) *auth.Account {
		account, err := auth.NewAccount(username, "$2a$04$abcdefghijklmnopqrstuv", address, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Create(ctx, account)).To(Succeed())
		return account
	}

	It("round-trips an account case-insensitively", func() {
		created := create("Alice", "10.0.0.1")

		got, err := s.GetByUsername(ctx, "ALICE")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(created.ID))
		Expect(got.RegisteredAt).To(BeTemporally("==", now))
		Expect(got.LastLoginAt).To(BeNil())
		Expect(string(got.Profile)).To(MatchJSON(`{}`))
	})

	It("rejects a duplicate username regardless of case", func() {
		create("Alice", "10.0.0.1")

		dup, err := auth.NewAccount("aLICE", "$2a$04$abcdefghijklmnopqrstuv", "10.0.0.2", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Create(ctx, dup)).To(MatchError(auth.ErrDuplicateUsername))
	})

	It("records logins and counts distinct accounts per address", func() {
		alice := create("alice", "10.0.0.1")
		bob := create("bob", "10.0.0.2")
		Expect(s.RecordLogin(ctx, bob.ID, "10.0.0.1", now)).To(Succeed())
		Expect(s.RecordLogin(ctx, bob.ID, "10.0.0.1", now)).To(Succeed())

		count, err := s.CountAccountsByAddress(ctx, "10.0.0.1", alice.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))

		got, err := s.GetByUsername(ctx, "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.LastLoginAddress).To(Equal("10.0.0.1"))
	})

	It("stores the ban sentinel and clears it", func() {
		create("alice", "10.0.0.1")

		Expect(s.SetBanEnd(ctx, "alice", auth.PermanentBan)).To(Succeed())
		ban, err := s.GetBanEnd(ctx, "Alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(ban.IsPermanent()).To(BeTrue())

		until := now.Add(time.Hour).Truncate(time.Millisecond)
		Expect(s.SetBanEnd(ctx, "alice", auth.BanUntil(until))).To(Succeed())
		ban, err = s.GetBanEnd(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(ban.Until()).To(BeTemporally("==", until))

		Expect(s.SetBanEnd(ctx, "alice", auth.BanEnd{})).To(Succeed())
		ban, err = s.GetBanEnd(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(ban.IsZero()).To(BeTrue())
	})

	It("updates profile fields independently", func() {
		alice := create("alice", "10.0.0.1")
		rank := 2

		Expect(s.UpdateProfile(ctx, alice.ID, &rank, nil)).To(Succeed())
		Expect(s.UpdateProfile(ctx, alice.ID, nil, json.RawMessage(`{"title":"mod"}`))).To(Succeed())

		got, err := s.GetByUsername(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Rank).To(Equal(2))
		Expect(string(got.Profile)).To(MatchJSON(`{"title":"mod"}`))
	})

	It("upserts login attempts", func() {
		rec := auth.LoginAttempts{Address: "10.0.0.1", Attempts: 1, LastAttempt: now}
		Expect(s.SetLoginAttempts(ctx, rec)).To(Succeed())
		rec.Attempts = 2
		Expect(s.SetLoginAttempts(ctx, rec)).To(Succeed())

		got, err := s.GetLoginAttempts(ctx, "10.0.0.1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Attempts).To(Equal(2))
		Expect(got.LastAttempt).To(BeTemporally("==", now))
	})

	It("counts concurrent failed attempts", func() {
		const failures = 20
		var wg sync.WaitGroup
		for i := 0; i < failures; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := s.IncrementLoginAttempts(ctx, "10.0.0.2", now)
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		got, err := s.GetLoginAttempts(ctx, "10.0.0.2")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Attempts).To(Equal(failures))
	})
})
