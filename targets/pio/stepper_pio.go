//go:build rp2040

package pio

import (
	"machine"

	"github.com/navratilpetr/Makelangelo-firmware/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// PIO program for step pulse generation
// Command word format:
//
//	Bits 0-15:  pulse count
//	Bits 16-23: delay cycles between pulses
//	Bit 31:     direction level
//
// buildStepperProgram creates the stepper PIO program using AssemblerV0
func buildStepperProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // 1: out x, 16 (pulse count)
		asm.Out(rp2pio.OutDestY, 8).Encode(),    // 2: out y, 8 (delay cycles)
		asm.Out(rp2pio.OutDestNull, 7).Encode(), // 3: out null, 7
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 4: out pins, 1 (direction)
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // 5: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 6: set pins, 0
		// delay_loop:
		asm.Jmp(7, rp2pio.JmpYNZeroDec).Encode(), // 7: jmp y--, 7
		asm.Jmp(5, rp2pio.JmpXNZeroDec).Encode(), // 8: jmp x--, 5
		// .wrap
	}
}

const stepperPIOOrigin = 0 // jump targets above are absolute

var (
	programLoaded [2]bool
	programOffset [2]uint8
)

// Backend implements core.StepperBackend on one PIO state machine
type Backend struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	stepPin   machine.Pin
	dirPin    machine.Pin
	invertDir bool
	dirLevel  bool
	offset    uint8
	clkDiv    uint16
	pioNum    uint8
	smNum     uint8
}

// NewBackend creates a backend on state machine smNum of PIO block pioNum
func NewBackend(pioNum, smNum uint8) *Backend {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	return &Backend{
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		pioNum: pioNum,
		smNum:  smNum,
	}
}

// Init loads the program and claims the pins. Inverted step outputs are
// not supported by the program.
func (b *Backend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	if invertStep {
		return ErrInvertedStep
	}
	b.stepPin = machine.Pin(stepPin)
	b.dirPin = machine.Pin(dirPin)
	b.invertDir = invertDir
	b.dirLevel = invertDir

	// Claim the state machine first
	b.sm.TryClaim()

	program := buildStepperProgram()
	// one copy of the program serves all four state machines of a block
	if !programLoaded[b.pioNum] {
		offset, err := b.pio.AddProgram(program, stepperPIOOrigin)
		if err != nil {
			return err
		}
		programOffset[b.pioNum] = offset
		programLoaded[b.pioNum] = true
	}
	offset := programOffset[b.pioNum]
	b.offset = offset

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)
	// shift right, explicit PULL, 32-bit threshold
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	b.clkDiv = ClockDivider(machine.CPUFrequency(), PulseWidthNs)
	cfg.SetClkDivIntFrac(b.clkDiv, 0)

	// pin directions must be set after Init
	b.sm.Init(offset, cfg)
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, b.dirLevel)
	b.sm.SetEnabled(true)
	return nil
}

func (b *Backend) command(count uint16, delay uint8) uint32 {
	cmd := uint32(count) | uint32(delay)<<16
	if b.dirLevel {
		cmd |= 1 << 31
	}
	return cmd
}

// Step queues a single pulse
func (b *Backend) Step() {
	b.QueueSteps(1, 1)
}

// QueueSteps queues count pulses spaced by delay state machine cycles
func (b *Backend) QueueSteps(count uint16, delay uint8) {
	if count == 0 {
		return
	}
	// the pulse takes count-1 extra loops
	cmd := b.command(count-1, delay)
	for b.sm.IsTxFIFOFull() {
	}
	b.sm.TxPut(cmd)
}

// SetDirection sets the direction level sent with the next pulses
func (b *Backend) SetDirection(reverse bool) {
	b.dirLevel = reverse != b.invertDir
}

// Stop drops queued pulses
func (b *Backend) Stop() {
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
	b.sm.SetEnabled(true)
}

// GetName returns the backend name
func (b *Backend) GetName() string {
	return "PIO"
}

// GetInfo returns backend performance information
func (b *Backend) GetInfo() core.StepperBackendInfo {
	div := b.clkDiv
	if div == 0 {
		div = ClockDivider(machine.CPUFrequency(), PulseWidthNs)
	}
	rate, pulse := StepTiming(machine.CPUFrequency(), div)
	return core.StepperBackendInfo{
		Name:          b.GetName(),
		MaxStepRate:   rate,
		MinPulseNs:    pulse,
		TypicalJitter: 10,
		CPUOverhead:   1,
	}
}
