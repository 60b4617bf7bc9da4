// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package oneshot_test

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/creachadair/reqchan/internal/oneshot"
	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"
)

func TestSendRecv(t *testing.T) {
	ctx := context.Background()
	s := oneshot.New[string]()
	if s.SenderClosed() {
		t.Error("SenderClosed: got true on a new slot")
	}
	if ok, _ := s.Send("hello"); !ok {
		t.Fatal("Send: got false on a new slot")
	}
	if !s.SenderClosed() {
		t.Error("SenderClosed: got false after Send")
	}
	if ok, peer := s.Send("again"); ok || peer {
		t.Errorf("Send again: got (%v, %v), want (false, false)", ok, peer)
	}
	if v, st := s.Recv(ctx, 0); st != oneshot.OK || v != "hello" {
		t.Errorf("Recv: got (%q, %v), want (hello, OK)", v, st)
	}
	if _, st := s.Recv(ctx, 0); st != oneshot.Consumed {
		t.Errorf("Recv again: got %v, want Consumed", st)
	}
}

func TestCloseSender(t *testing.T) {
	s := oneshot.New[int]()
	if !s.CloseSender() {
		t.Error("CloseSender: got false on a new slot")
	}
	if s.CloseSender() {
		t.Error("CloseSender again: got true")
	}
	if _, st := s.Recv(context.Background(), 0); st != oneshot.Dropped {
		t.Errorf("Recv: got %v, want Dropped", st)
	}
}

func TestCloseReceiver(t *testing.T) {
	s := oneshot.New[int]()
	if !s.CloseReceiver() {
		t.Error("CloseReceiver: got false on a new slot")
	}
	if !s.ReceiverClosed() || !s.SenderClosed() {
		t.Error("Slot is not closed on both sides")
	}
	if ok, peer := s.Send(1); ok || !peer {
		t.Errorf("Send: got (%v, %v), want (false, true)", ok, peer)
	}
	if s.CloseSender() {
		t.Error("CloseSender: got true after the receiver closed")
	}

	// Closing after a value was sent discards the value.
	s2 := oneshot.New[int]()
	s2.Send(5)
	if s2.CloseReceiver() {
		t.Error("CloseReceiver: got true after a value was sent")
	}
	if _, st := s2.Recv(context.Background(), 0); st != oneshot.Consumed {
		t.Errorf("Recv: got %v, want Consumed", st)
	}
}

func TestConcurrent(t *testing.T) {
	defer leaktest.Check(t)()

	for i := range 100 {
		s := oneshot.New[int]()
		g := taskgroup.New(nil)
		g.Go(func() error {
			s.Send(i)
			return nil
		})
		if v, st := s.Recv(context.Background(), 0); st != oneshot.OK || v != i {
			t.Errorf("Recv: got (%v, %v), want (%d, OK)", v, st, i)
		}
		g.Wait()
	}
}

func TestExpired(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := oneshot.New[int]()
		start := time.Now()
		if _, st := s.Recv(t.Context(), time.Second); st != oneshot.Expired {
			t.Errorf("Recv: got %v, want Expired", st)
		}
		if got := time.Since(start); got != time.Second {
			t.Errorf("Recv waited %v, want %v", got, time.Second)
		}
		if ok, peer := s.Send(1); ok || !peer {
			t.Errorf("Send after expiry: got (%v, %v), want (false, true)", ok, peer)
		}
	})
}

func TestDone(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := oneshot.New[int]()
		ctx, cancel := context.WithCancel(t.Context())
		go func() {
			time.Sleep(time.Second)
			cancel()
		}()
		if _, st := s.Recv(ctx, time.Hour); st != oneshot.Done {
			t.Errorf("Recv: got %v, want Done", st)
		}
		if !s.ReceiverClosed() {
			t.Error("ReceiverClosed: got false after cancellation")
		}
	})
}
