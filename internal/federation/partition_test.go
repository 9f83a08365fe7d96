package federation

import "testing"

func TestPartitionLocalAndRemote(t *testing.T) {
	local, remote := Partition([]string{
		"alice@relay-a.example.com",
		"bob@relay-b.example.com",
		"carol@relay-b.example.com",
		"dave",
	}, "relay-a.example.com")

	if len(local) != 2 {
		t.Fatalf("local = %v, want 2 entries", local)
	}
	if local[0] != "alice" || local[1] != "dave" {
		t.Errorf("local = %v", local)
	}

	if len(remote) != 1 {
		t.Fatalf("remote = %v, want 1 host", remote)
	}
	addrs, ok := remote["relay-b.example.com"]
	if !ok || len(addrs) != 2 {
		t.Fatalf("remote[relay-b.example.com] = %v", addrs)
	}
}

func TestPartitionBareIDIsLocal(t *testing.T) {
	local, remote := Partition([]string{"justanid"}, "relay-a.example.com")
	if len(local) != 1 || local[0] != "justanid" {
		t.Errorf("local = %v", local)
	}
	if len(remote) != 0 {
		t.Errorf("remote = %v, want empty", remote)
	}
}

func TestPartitionEmptyInput(t *testing.T) {
	local, remote := Partition(nil, "relay-a.example.com")
	if len(local) != 0 || len(remote) != 0 {
		t.Errorf("expected empty partition, got local=%v remote=%v", local, remote)
	}
}
