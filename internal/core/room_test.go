package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Relay/internal/domain"
)

type fakeConn struct {
	frames []string
	fail   bool
	closed bool
}

func (c *fakeConn) TrySend(f Frame) error {
	if c.fail {
		return errors.New("send failed")
	}
	c.frames = append(c.frames, string(f))
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

type fakeLog struct {
	entries []string
	err     error
}

func (l *fakeLog) Append(msg domain.Message) error {
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, msg.Text)
	return nil
}

var stampedHi = regexp.MustCompile(`^\[.+\] hi$`)
var stampedDeparture = regexp.MustCompile(`^\[.+\] A user has left the room\.$`)

func Test_Room_Message_Persists_And_Skips_Sender(t *testing.T) {
	req := require.New(t)
	journal := &fakeLog{}
	rm := newRoom("general", journal)
	a, b := &fakeConn{}, &fakeConn{}
	rm.apply(joinCmd{sid: "A", conn: a})
	rm.apply(joinCmd{sid: "B", conn: b})

	rm.apply(messageCmd{sid: "A", payload: Frame("hi")})

	req.Equal([]string{"hi"}, journal.entries)
	req.Len(b.frames, 1)
	req.Regexp(stampedHi, b.frames[0])
	req.Empty(a.frames)
}

func Test_Room_Close_Removes_And_Notifies_Remaining(t *testing.T) {
	req := require.New(t)
	rm := newRoom("general", &fakeLog{})
	a, b := &fakeConn{}, &fakeConn{}
	rm.apply(joinCmd{sid: "A", conn: a})
	rm.apply(joinCmd{sid: "B", conn: b})

	rm.apply(closeCmd{sid: "B", code: 1000, reason: "bye"})

	req.Equal(1, rm.MemberCount())
	req.Equal([]SessionID{"A"}, rm.registry.snapshot())
	req.Len(a.frames, 1)
	req.Regexp(stampedDeparture, a.frames[0])
}

func Test_Room_Close_Absent_Session_Has_No_Side_Effects(t *testing.T) {
	req := require.New(t)
	rm := newRoom("general", &fakeLog{})
	a := &fakeConn{}
	rm.apply(joinCmd{sid: "A", conn: a})

	rm.apply(closeCmd{sid: "ghost", code: 1000, reason: "bye"})
	rm.apply(closeCmd{sid: "ghost", code: 1000, reason: "bye"})

	req.Equal(1, rm.MemberCount())
	req.Empty(a.frames)
}

func Test_Room_Persist_Failure_Does_Not_Block_Delivery(t *testing.T) {
	req := require.New(t)
	journal := &fakeLog{err: errors.New("disk on fire")}
	rm := newRoom("general", journal)
	a, b := &fakeConn{}, &fakeConn{}
	rm.apply(joinCmd{sid: "A", conn: a})
	rm.apply(joinCmd{sid: "B", conn: b})

	rm.apply(messageCmd{sid: "A", payload: Frame("hi")})

	req.Empty(journal.entries)
	req.Len(b.frames, 1)
	req.Regexp(stampedHi, b.frames[0])
}

func Test_Room_Without_Log_Still_Delivers(t *testing.T) {
	req := require.New(t)
	rm := newRoom("general", nil)
	a, b := &fakeConn{}, &fakeConn{}
	rm.apply(joinCmd{sid: "A", conn: a})
	rm.apply(joinCmd{sid: "B", conn: b})

	rm.apply(messageCmd{sid: "A", payload: Frame("hi")})

	req.Len(b.frames, 1)
}

func Test_Room_Failed_Send_Evicts_Only_That_Session(t *testing.T) {
	req := require.New(t)
	rm := newRoom("general", &fakeLog{})
	s := &fakeConn{fail: true}
	tt, u := &fakeConn{}, &fakeConn{}
	rm.apply(joinCmd{sid: "S", conn: s})
	rm.apply(joinCmd{sid: "T", conn: tt})
	rm.apply(joinCmd{sid: "U", conn: u})

	rm.apply(broadcastCmd{text: "hello everyone"})

	req.Len(tt.frames, 1)
	req.Len(u.frames, 1)
	req.True(s.closed)
	req.Equal(2, rm.MemberCount())
	req.Equal([]SessionID{"T", "U"}, rm.registry.snapshot())
}

func Test_Room_Error_Event_Does_Not_Remove_Session(t *testing.T) {
	req := require.New(t)
	rm := newRoom("general", &fakeLog{})
	a := &fakeConn{}
	rm.apply(joinCmd{sid: "A", conn: a})

	rm.apply(errorCmd{sid: "A", err: errors.New("read tcp: connection reset")})

	req.Equal(1, rm.MemberCount())
	req.Empty(a.frames)
}

func Test_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	j1, j2 := &fakeLog{}, &fakeLog{}
	r1 := newRoom("red", j1)
	r2 := newRoom("blue", j2)
	a, b := &fakeConn{}, &fakeConn{}
	r1.apply(joinCmd{sid: "A", conn: a})
	r2.apply(joinCmd{sid: "B", conn: b})

	r1.apply(messageCmd{sid: "A", payload: Frame("hi")})

	req.Equal([]string{"hi"}, j1.entries)
	req.Empty(j2.entries)
	req.Empty(b.frames)
}

func Test_Room_Run_Applies_Concurrent_Commands(t *testing.T) {
	req := require.New(t)
	rm := newRoom("busy", &fakeLog{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rm.Run(ctx)

	const n = 20
	for i := 0; i < n; i++ {
		go rm.Join(SessionID(fmt.Sprintf("s%d", i)), &fakeConn{})
	}
	req.Eventually(func() bool { return rm.MemberCount() == n }, time.Second, 5*time.Millisecond)

	for i := 0; i < n; i++ {
		go rm.HandleClose(SessionID(fmt.Sprintf("s%d", i)), 1000, "bye")
	}
	req.Eventually(func() bool { return rm.MemberCount() == 0 }, time.Second, 5*time.Millisecond)
}

func Test_Room_Join_And_Close_Survive_Command_Backlog(t *testing.T) {
	req := require.New(t)
	rm := newRoom("busy", &fakeLog{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fill the queue to capacity before the loop starts draining.
	for i := 0; i < commandBuffer; i++ {
		rm.Broadcast("backlog")
	}
	go rm.Run(ctx)

	rm.Join("A", &fakeConn{})
	req.Eventually(func() bool { return rm.MemberCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < commandBuffer; i++ {
		rm.Broadcast("backlog")
	}
	rm.HandleClose("A", 1000, "bye")
	req.Eventually(func() bool { return rm.MemberCount() == 0 }, time.Second, 5*time.Millisecond)
}

func Test_Room_Enqueue_After_Stop_Does_Not_Hang(t *testing.T) {
	req := require.New(t)
	rm := newRoom("gone", &fakeLog{})
	ctx, cancel := context.WithCancel(context.Background())
	go rm.Run(ctx)
	cancel()

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 2*commandBuffer; i++ {
			rm.Broadcast("late")
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		req.Fail("enqueue blocked on a stopped room")
	}
}

func Test_Manager_Resolves_One_Instance_Per_Name(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr := NewRoomManager(ctx, nil)

	r1 := mgr.GetOrCreate("general")
	r2 := mgr.GetOrCreate("general")
	other := mgr.GetOrCreate("other")

	req.Same(r1, r2)
	req.NotSame(r1, other)
	req.Len(mgr.List(), 2)

	mgr.StopRoom("other")
	req.Len(mgr.List(), 1)
}
