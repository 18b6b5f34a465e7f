package events

import "testing"

func TestSubscribeReceivesMatchingType(t *testing.T) {
	b := New()
	var got []Event
	b.Subscribe("widget", func(e Event) { got = append(got, e) })

	b.Publish(Event{Kind: ConceptCreated, RowID: 1, Type: "widget"})
	b.Publish(Event{Kind: ConceptCreated, RowID: 2, Type: "gadget"})

	if len(got) != 1 || got[0].RowID != 1 {
		t.Fatalf("got %+v, want one event with RowID 1", got)
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	b := New()
	var count int
	b.SubscribeAll(func(e Event) { count++ })

	b.Publish(Event{Kind: ConceptCreated, Type: "widget"})
	b.Publish(Event{Kind: RelationCreated, Type: "owns"})

	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var count int
	id := b.SubscribeAll(func(e Event) { count++ })
	b.Publish(Event{Kind: ConceptCreated})
	b.Unsubscribe(id)
	b.Publish(Event{Kind: ConceptCreated})

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestDeliveryOrderMatchesSubscriptionOrder(t *testing.T) {
	b := New()
	var order []int
	b.SubscribeAll(func(e Event) { order = append(order, 1) })
	b.SubscribeAll(func(e Event) { order = append(order, 2) })
	b.SubscribeAll(func(e Event) { order = append(order, 3) })

	b.Publish(Event{Kind: ConceptCreated})

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestHandlerMutatingBusDuringPublishDoesNotPanic(t *testing.T) {
	b := New()
	var secondID Token
	b.SubscribeAll(func(e Event) { b.Unsubscribe(secondID) })
	secondID = b.SubscribeAll(func(e Event) {})

	b.Publish(Event{Kind: ConceptCreated})
	b.Publish(Event{Kind: ConceptCreated})
}
